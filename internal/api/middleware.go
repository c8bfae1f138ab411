package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"hopper/internal/logging"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500
)

// requestLogger logs every request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []logging.Attr{
			logging.Int("status", status),
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
			logging.Int("bytes", c.Writer.Size()),
		}
		switch {
		case status >= statusErrorThreshold:
			logging.ErrorWithContext(logger, "http request failed", "api_request_failed", attrs...)
		case status >= statusWarnThreshold:
			logger.Info("http request rejected", logging.Args(attrs...)...)
		default:
			logger.Debug("http request completed", logging.Args(attrs...)...)
		}
	}
}
