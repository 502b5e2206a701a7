package middleware

import (
	"orders_manager/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextTraceID = response.TraceIDKey
	HeaderTraceID  = "X-Trace-ID"
)

// TraceMiddleware 添加请求追踪ID，优先沿用上游传入的 X-Trace-ID
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(ContextTraceID, traceID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
