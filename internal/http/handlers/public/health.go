package public

import (
	"context"
	"time"

	"github.com/bazaar-next/internal/cache"
	"github.com/bazaar-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

const healthProbeTimeout = 2 * time.Second

// Health 健康检查，Redis 不可达时降级但不失败
func (h *Handler) Health(c *gin.Context) {
	redisStatus := "disabled"
	if cache.Enabled() {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			requestLog(c).Warnw("health_redis_unreachable", "error", err)
			redisStatus = "unreachable"
		} else {
			redisStatus = "ok"
		}
	}
	response.Success(c, gin.H{
		"status": "ok",
		"redis":  redisStatus,
		"queue":  h.QueueClient.Enabled(),
	})
}
