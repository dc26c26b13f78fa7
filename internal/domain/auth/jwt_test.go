package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "salesflow/internal/core/context"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig(testSecret))

	token, expiresAt, err := svc.GenerateAccessToken(appctx.UserContext{
		UserID: "u-1",
		Email:  "clerk@example.com",
		Roles:  []string{"sales"},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.UserID)
	assert.Equal(t, "clerk@example.com", user.Email)
	assert.Equal(t, []string{"sales"}, user.Roles)
	assert.False(t, user.IsAdmin)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig(testSecret))

	other := NewJWTService(DefaultJWTConfig("another-secret-another-secret!!"))
	foreign, _, err := other.GenerateAccessToken(appctx.UserContext{UserID: "u-1"})
	require.NoError(t, err)

	cfg := DefaultJWTConfig(testSecret)
	cfg.AccessTokenTTL = -time.Minute
	expired, _, err := NewJWTService(cfg).GenerateAccessToken(appctx.UserContext{UserID: "u-1"})
	require.NoError(t, err)

	cfg = DefaultJWTConfig(testSecret)
	cfg.Issuer = "someone-else"
	wrongIssuer, _, err := NewJWTService(cfg).GenerateAccessToken(appctx.UserContext{UserID: "u-1"})
	require.NoError(t, err)

	noUser, _, err := svc.GenerateAccessToken(appctx.UserContext{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", expired},
		{"wrong issuer", wrongIssuer},
		{"no user", noUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}
