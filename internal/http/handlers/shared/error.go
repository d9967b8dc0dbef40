package shared

import (
	"github.com/bazaar-next/internal/http/response"
	"github.com/bazaar-next/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if c.Request != nil {
		return logger.FromContext(c.Request.Context())
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应；5xx 记 Error，其余带原始错误的记 Warn。
func RespondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		log := RequestLog(c)
		if code >= response.CodeInternal {
			log.Errorw("handler_error", "code", code, "message", msg, "error", err)
		} else {
			log.Warnw("handler_rejected", "code", code, "message", msg, "error", err)
		}
	}
	response.Error(c, code, msg)
}
