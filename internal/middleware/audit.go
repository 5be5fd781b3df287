package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/pkg/logger"
)

// Audit writes an audit log line for every successful mutation on the route.
func Audit(log *zap.Logger, action, resource string) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		fields := []zap.Field{
			zap.String("action", action),
			zap.String("resource", resource),
			zap.String("resource_id", firstParam(c, "id", "recordId", "feeId")),
			zap.String("auth_method", c.GetString(ContextAuthMethodKey)),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		}
		if claims := claimsFrom(c); claims != nil {
			fields = append(fields, zap.String("user_id", claims.UserID))
		}
		logger.Request(log, c).Info("audit", fields...)
	}
}

func firstParam(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}
