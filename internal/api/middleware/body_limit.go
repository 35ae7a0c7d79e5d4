package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"leavedesk/backend/pkg/response"
)

// BodyLimit 全局请求体大小限制中间件
// maxBytes: 默认上限；overrides 按路由模板（c.FullPath）放宽，如 Excel 导入
func BodyLimit(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if v, ok := overrides[c.FullPath()]; ok {
			limit = v
		}
		if c.Request.ContentLength > limit {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		c.Next()

		if c.Writer.Written() {
			return
		}
		for _, err := range c.Errors {
			var tooLarge *http.MaxBytesError
			if errors.As(err.Err, &tooLarge) {
				response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
				return
			}
		}
	}
}
