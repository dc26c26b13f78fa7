package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/internal/core/apperror"
	appctx "salesflow/internal/core/context"
	"salesflow/internal/infrastructure/storage/postgres"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type finished struct {
	outcome string
	status  int
	body    string
}

type fakeStore struct {
	replay   *postgres.IdempotencyReplay
	err      error
	hash     string
	finished []finished
}

func (s *fakeStore) AcquireKey(_ context.Context, _, _, _, requestHash string) (*postgres.IdempotencyReplay, error) {
	s.hash = requestHash
	return s.replay, s.err
}

func (s *fakeStore) CompleteKey(_ context.Context, _ string, status int, _ string, body []byte) error {
	s.finished = append(s.finished, finished{"complete", status, string(body)})
	return nil
}

func (s *fakeStore) FailKey(_ context.Context, _ string, status int, _ string, body []byte) error {
	s.finished = append(s.finished, finished{"fail", status, string(body)})
	return nil
}

func (s *fakeStore) ReleaseKey(context.Context, string) error {
	s.finished = append(s.finished, finished{"release", 0, ""})
	return nil
}

func newIdempotentRouter(store IdempotencyStore, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/sales", Idempotency(store, 1<<10), handler)
	return r
}

func post(r http.Handler, body string, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
		outcome string
		status  int
	}{
		{
			name:    "success is completed",
			handler: func(c *gin.Context) { c.JSON(http.StatusCreated, gin.H{"id": "1"}) },
			outcome: "complete",
			status:  http.StatusCreated,
		},
		{
			name: "client error is stored",
			handler: func(c *gin.Context) {
				_ = c.Error(apperror.NewMissingProof("POD"))
				c.Abort()
			},
			outcome: "fail",
			status:  http.StatusBadRequest,
		},
		{
			name: "server error releases the key",
			handler: func(c *gin.Context) {
				_ = c.Error(errors.New("db down"))
				c.Abort()
			},
			outcome: "release",
			status:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			w := post(newIdempotentRouter(store, tt.handler), `{"a":1}`, "k-1")

			require.Len(t, store.finished, 1)
			assert.Equal(t, tt.outcome, store.finished[0].outcome)
			assert.Equal(t, tt.status, store.finished[0].status)
			if tt.outcome != "release" {
				assert.Equal(t, w.Body.String(), store.finished[0].body)
			}
		})
	}
}

func TestIdempotency_MissingProofBody(t *testing.T) {
	store := &fakeStore{}
	handler := func(c *gin.Context) {
		_ = c.Error(apperror.NewMissingProof("POD"))
		c.Abort()
	}

	w := post(newIdempotentRouter(store, handler), `{}`, "k-1")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeMissingProof, body["code"])
}

func TestIdempotency_Replay(t *testing.T) {
	store := &fakeStore{replay: &postgres.IdempotencyReplay{
		StatusCode:  http.StatusCreated,
		ContentType: "application/json",
		Body:        []byte(`{"id":"stored"}`),
	}}
	called := false
	r := newIdempotentRouter(store, func(c *gin.Context) { called = true })

	w := post(r, `{"a":1}`, "k-1")

	assert.False(t, called)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"id":"stored"}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
}

func TestIdempotency_ConflictAndLimits(t *testing.T) {
	store := &fakeStore{err: apperror.NewIdempotencyConflict("k-1")}
	r := newIdempotentRouter(store, func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusConflict, post(r, `{}`, "k-1").Code)

	big := strings.Repeat("x", 2<<10)
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(r, big, "k-2").Code)

	store.err = nil
	assert.Equal(t, http.StatusOK, post(r, big, "").Code)
}

func TestIdempotency_HashesBody(t *testing.T) {
	store := &fakeStore{}
	var seen string
	r := newIdempotentRouter(store, func(c *gin.Context) {
		b := make([]byte, 16)
		n, _ := c.Request.Body.Read(b)
		seen = string(b[:n])
		c.Status(http.StatusNoContent)
	})

	post(r, `{"a":1}`, "k-1")
	first := store.hash
	post(r, `{"a":2}`, "k-1")

	assert.Equal(t, `{"a":2}`, seen)
	assert.NotEqual(t, first, store.hash)
	assert.Len(t, first, 64)
}

type fakeValidator struct{}

func (fakeValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	switch token {
	case "clerk":
		return &appctx.UserContext{UserID: "u-1", Roles: []string{"sales"}}, nil
	case "admin":
		return &appctx.UserContext{UserID: "u-2", IsAdmin: true}, nil
	}
	return nil, errors.New("bad token")
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/me", Auth(fakeValidator{}), func(c *gin.Context) {
		c.String(http.StatusOK, appctx.GetUserID(c.Request.Context()))
	})
	r.GET("/managers", Auth(fakeValidator{}), RequireRole("manager"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"bad scheme", "/me", "Basic clerk", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"valid", "/me", "Bearer clerk", http.StatusOK},
		{"missing role", "/managers", "Bearer clerk", http.StatusForbidden},
		{"admin bypass", "/managers", "bearer admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Trace(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body.Code)
	requestID := w.Header().Get(HeaderRequestID)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, body.Details["request_id"])
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	r := gin.New()
	r.Use(Trace(), Recovery())
	r.GET("/abort", func(c *gin.Context) { panic(http.ErrAbortHandler) })

	assert.Panics(t, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	})
}
