// Package middleware provides HTTP middleware components.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"salesflow/internal/core/apperror"
	appctx "salesflow/internal/core/context"
	"salesflow/pkg/logger"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR carrying the
// request id. The stack is logged, never returned. http.ErrAbortHandler is
// re-raised so the server drops the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			ctx := c.Request.Context()
			logger.Error(ctx, "panic recovered",
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)

			appErr := apperror.NewInternal(fmt.Errorf("panic: %v", rec))
			if requestID := appctx.RequestID(ctx); requestID != "" {
				appErr = appErr.WithDetail("request_id", requestID)
			}
			_ = c.Error(appErr)
			c.Abort()
			writeError(c)
		}()
		c.Next()
	}
}
