package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"salesflow/pkg/logger"
)

// RequestObserver records request metrics.
type RequestObserver interface {
	ObserveHTTP(method, path string, status int, elapsed time.Duration)
}

// Logger middleware logs HTTP requests with timing and status and puts log
// into the request context for the domain layer.
func Logger(log *logger.Logger, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if observer != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			observer.ObserveHTTP(c.Request.Method, route, status, latency)
		}

		log.WithContext(c.Request.Context()).Infow("http request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}
