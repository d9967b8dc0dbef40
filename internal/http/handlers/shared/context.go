package shared

import (
	"strconv"
	"strings"

	"github.com/bazaar-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		if v == 0 {
			RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
			return 0, false
		}
		return v, true
	case int:
		if v <= 0 {
			RespondError(c, response.CodeBadRequest, key+" is invalid", nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v <= 0 {
			RespondError(c, response.CodeBadRequest, key+" is invalid", nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, key+" has unexpected type", nil)
		return 0, false
	}
}

// ParseUintParam 解析路径参数中的正整数 ID。
func ParseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		RespondError(c, response.CodeBadRequest, name+" is invalid", nil)
		return 0, false
	}
	return uint(id), true
}
