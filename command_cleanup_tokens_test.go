package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-credauth"
)

func TestCleanupExpiredTokensHandler_Execute(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "alice", "alice@example.com")

	for i := 0; i < 3; i++ {
		_, err := f.tokens.IssueRefreshToken(f.ctx, account.ID)
		require.NoError(t, err)
	}
	f.clock.Advance(auth.DefaultRefreshTokenTTL + time.Second)
	live, err := f.tokens.IssueRefreshToken(f.ctx, account.ID)
	require.NoError(t, err)

	handler := auth.NewCleanupExpiredTokensHandler(f.tokens, nil)
	msg := auth.CleanupExpiredTokensMessage{Timeout: time.Minute}
	assert.Equal(t, "refresh_tokens.cleanup", msg.Type())

	require.NoError(t, handler.Execute(f.ctx, msg))
	assert.Equal(t, 3, handler.Deleted)

	require.NoError(t, handler.Execute(f.ctx, msg))
	assert.Equal(t, 0, handler.Deleted, "a second pass finds nothing")

	_, err = f.tokens.ValidateRefreshToken(f.ctx, live.Token)
	assert.NoError(t, err)
}

func TestCleanupExpiredTokensHandler_CancelledContext(t *testing.T) {
	f := newFixture(t)
	handler := auth.NewCleanupExpiredTokensHandler(f.tokens, nil)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	err := handler.Execute(ctx, auth.CleanupExpiredTokensMessage{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCleanupEvery_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	handler := auth.NewCleanupExpiredTokensHandler(f.tokens, nil)

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() {
		done <- auth.RunCleanupEvery(ctx, 10*time.Millisecond, handler, auth.CleanupExpiredTokensMessage{})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
