package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"salesflow/internal/core/apperror"
	appctx "salesflow/internal/core/context"
	"salesflow/internal/infrastructure/storage/postgres"
	"salesflow/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

// IdempotencyStore keeps the outcome of keyed mutating requests.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a POST/PUT/PATCH carrying
// X-Idempotency-Key. Successful and 4xx responses are stored; a 5xx frees
// the key so the client can retry.
func Idempotency(store IdempotencyStore, maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("failed to read request body"))
			c.Abort()
			return
		}
		if int64(len(body)) > maxBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		ctx := c.Request.Context()
		operation := c.Request.Method + " " + c.FullPath()

		replay, err := store.AcquireKey(ctx, key, appctx.GetUserID(ctx), operation, hex.EncodeToString(hash[:]))
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}
		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()
		writeError(c)

		status := w.Status()
		contentType := w.Header().Get("Content-Type")
		bg := context.WithoutCancel(ctx)

		switch {
		case status >= http.StatusInternalServerError:
			err = store.ReleaseKey(bg, key)
		case status >= http.StatusBadRequest:
			err = store.FailKey(bg, key, status, contentType, w.body.Bytes())
		default:
			err = store.CompleteKey(bg, key, status, contentType, w.body.Bytes())
		}
		if err != nil {
			logger.Warn(ctx, "failed to finish idempotency key", "key", key, "status", status, "error", err)
		}
	}
}
