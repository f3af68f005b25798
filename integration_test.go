package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-credauth"
)

func TestSessionLifecycleActivity(t *testing.T) {
	f := newFixture(t)

	pair, err := f.auther.Register(f.ctx, auth.RegisterRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", pair.Account.Email)

	_, _, err = f.auther.Login(f.ctx, auth.LoginRequest{Identifier: "alice", Password: "wrong"})
	requireCode(t, err, auth.ErrInvalidCredentials)

	login, _, err := f.auther.Login(f.ctx, auth.LoginRequest{Identifier: "alice@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Nil(t, f.lockout(t, login.Account).LockedUntil)
	assert.Equal(t, 0, f.lockout(t, login.Account).FailedAttempts)

	f.clock.Advance(10 * time.Minute)
	_, err = f.auther.Refresh(f.ctx, login.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.auther.Logout(f.ctx, login.RefreshToken))

	_, err = f.auther.Refresh(f.ctx, login.RefreshToken)
	requireCode(t, err, auth.ErrTokenInvalid)

	_, err = f.credentials.DeactivateAccount(f.ctx, pair.Account.ID)
	require.NoError(t, err)

	_, err = f.auther.Refresh(f.ctx, pair.RefreshToken)
	requireCode(t, err, auth.ErrTokenInvalid, "deactivation revokes every refresh token")

	_, _, err = f.auther.Login(f.ctx, auth.LoginRequest{Identifier: "alice", Password: testPassword})
	requireCode(t, err, auth.ErrInvalidCredentials)

	assert.Len(t, f.events.ByType(auth.ActivityEventRegistered), 1)
	assert.Len(t, f.events.ByType(auth.ActivityEventLoginSuccess), 1)
	assert.Len(t, f.events.ByType(auth.ActivityEventLoginFailure), 2)
	assert.Len(t, f.events.ByType(auth.ActivityEventTokenIssued), 2)
	assert.Len(t, f.events.ByType(auth.ActivityEventAccountDisabled), 1)
	assert.Equal(t, 3, f.attempts(t, ""))
}
