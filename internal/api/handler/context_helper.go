package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"leavedesk/backend/internal/service"
	"leavedesk/backend/pkg/response"
)

// mustGetString 从 Gin 上下文中提取 JWT 中间件注入的字符串字段。
// 缺失时写入 401 响应并返回 false，调用方应直接 return。
func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
func MustGetUserID(c *gin.Context) (string, bool) { return mustGetString(c, "user_id") }

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) { return mustGetString(c, "role") }

// MustGetOrgID 从 Gin 上下文中安全提取 org_id。
func MustGetOrgID(c *gin.Context) (string, bool) { return mustGetString(c, "org_id") }

// mustGetCaller 一次性提取 user_id / role / org_id
func mustGetCaller(c *gin.Context) (service.Caller, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return service.Caller{}, false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return service.Caller{}, false
	}
	orgID, ok := MustGetOrgID(c)
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{UserID: userID, Role: role, OrgID: orgID}, true
}

// requestCtx 附带客户端 IP 与 User-Agent，供审计日志使用
func requestCtx(c *gin.Context) context.Context {
	return service.WithRequestMeta(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
}
