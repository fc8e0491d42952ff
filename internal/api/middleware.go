package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ZapLoggerMiddleware logs each request through the shared zap logger instead
// of gin's default writer.
func ZapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			log.Error(c.Errors.String(), fields...)
			return
		}
		log.Info("request completed", fields...)
	}
}
