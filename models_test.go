package auth_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-credauth"
)

func TestRefreshToken_State(t *testing.T) {
	expires := testEpoch.Add(time.Hour)

	tests := []struct {
		name  string
		token auth.RefreshToken
		now   time.Time
		state auth.RefreshTokenState
		valid bool
	}{
		{name: "active", token: auth.RefreshToken{ExpiresAt: expires}, now: testEpoch, state: auth.RefreshTokenActive, valid: true},
		{name: "expired at the boundary", token: auth.RefreshToken{ExpiresAt: expires}, now: expires, state: auth.RefreshTokenExpired},
		{name: "revoked", token: auth.RefreshToken{ExpiresAt: expires, Revoked: true}, now: testEpoch, state: auth.RefreshTokenRevoked},
		{name: "revoked wins over expired", token: auth.RefreshToken{ExpiresAt: expires, Revoked: true}, now: expires.Add(time.Hour), state: auth.RefreshTokenRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.state, tt.token.State(tt.now))
			assert.Equal(t, tt.valid, tt.token.IsValid(tt.now))
		})
	}
}

func TestAccount_JSONOmitsSecrets(t *testing.T) {
	raw, err := json.Marshal(&auth.Account{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$12$secret",
		Active:       true,
	})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.NotContains(t, string(raw), "password")

	raw, err = json.Marshal(&auth.RefreshToken{Token: "opaque-value"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "opaque-value")
}
