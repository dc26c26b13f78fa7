package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "salesflow/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	ctxKeyRequestID = "request_id"
)

// Trace tags the request with a request id and a trace id, taking either
// from the incoming headers when present, and echoes both back.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := appctx.Trace{
			RequestID: headerOrNew(c, HeaderRequestID),
			TraceID:   headerOrNew(c, HeaderTraceID),
		}
		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), t))
		c.Set(ctxKeyRequestID, t.RequestID)

		c.Header(HeaderRequestID, t.RequestID)
		c.Header(HeaderTraceID, t.TraceID)
		c.Next()
	}
}

func headerOrNew(c *gin.Context, name string) string {
	if v := c.GetHeader(name); v != "" {
		return v
	}
	return uuid.NewString()
}
