package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/api/handler"
	"leavedesk/backend/internal/api/router"
	"leavedesk/backend/internal/repository"
	"leavedesk/backend/internal/service"
	"leavedesk/backend/internal/zoho"
	"leavedesk/backend/pkg/database"
	"leavedesk/backend/pkg/jwt"
	applogger "leavedesk/backend/pkg/logger"
	"leavedesk/backend/pkg/mailer"
	"leavedesk/backend/pkg/queue"
	"leavedesk/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("LEAVEDESK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("zoho_enabled", cfg.Feature.ZohoIntegrationEnabled),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	version, err := database.RunMigrations(sqlDB, logger)
	if err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}
	logger.Info("数据库迁移完成", zap.Uint("version", version))

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单、限流与任务队列将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化 JWT 管理器与邮件
	jwtMgr := jwt.NewManager(&cfg.Auth)
	mail := mailer.NewSender(&cfg.Mail, logger)

	// 6. Zoho 客户端：OAuth → 刷新器 → 带限流的调用器 → People 接口
	repo := repository.NewRepository(db)
	httpClient := &http.Client{Timeout: cfg.Zoho.HTTPTimeout}
	oauthClient := zoho.NewOAuthClient(&cfg.Zoho, httpClient)
	refresher := zoho.NewRefresher(oauthClient, repo.ZohoConnection, logger)
	var limiter *rate.Limiter
	if cfg.Zoho.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Zoho.RateLimitPerSecond), cfg.Zoho.RateLimitBurst)
	}
	people := zoho.NewPeopleClient(zoho.NewCaller(repo.ZohoConnection, refresher, httpClient, limiter, logger))

	// 7. 异步任务队列（依赖 Redis）
	var (
		enqueuer    service.TaskEnqueuer
		queueClient *queue.Client
		queueServer *queue.Server
	)
	if cfg.Queue.Enabled && rdb != nil {
		queueClient = queue.NewClient(&cfg.Redis, &cfg.Queue, logger)
		queueServer = queue.NewServer(&cfg.Redis, &cfg.Queue, logger)
		enqueuer = queueClient
	} else if cfg.Queue.Enabled {
		logger.Warn("Redis 不可用，通知改为后台 goroutine 投递（不经队列，失败不重试）")
	}

	// 8. 依赖注入: Repository → Service → Handler
	svc := service.NewService(service.Deps{
		Config:    cfg,
		Repo:      repo,
		JWT:       jwtMgr,
		Redis:     rdb,
		Mailer:    mail,
		Enqueuer:  enqueuer,
		ZohoOAuth: oauthClient,
		People:    people,
		Logger:    logger,
	})
	h := handler.NewHandler(cfg, svc)

	if queueServer != nil {
		queueServer.Handle(queue.TypeLeaveNotification, svc.Notification.HandleTask)
		if err := queueServer.Start(); err != nil {
			logger.Fatal("任务队列启动失败", zap.Error(err))
		}
	}

	// 9. 定时刷新即将过期的 Zoho token
	var refreshJob *service.TokenRefreshJob
	if cfg.Scheduler.Enabled && cfg.Feature.ZohoIntegrationEnabled {
		refreshJob = service.NewTokenRefreshJob(cfg.Scheduler.TokenRefreshCron, cfg.Zoho.RefreshAhead, repo, refresher, logger)
		if err := refreshJob.Start(); err != nil {
			logger.Fatal("Zoho token 刷新任务启动失败", zap.Error(err))
		}
	}

	// 10. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, db, logger)

	// 11. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 12. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if refreshJob != nil {
		refreshJob.Stop()
	}
	if queueServer != nil {
		queueServer.Shutdown()
	}
	if queueClient != nil {
		_ = queueClient.Close()
	}

	// 关闭数据库连接
	if closeDB, _ := db.DB(); closeDB != nil {
		_ = closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		_ = rdb.Close()
	}

	logger.Info("服务器已关闭")
}
