package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-credauth"
)

func TestLockoutTracker_StateMachine(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "alice", "alice@example.com")

	tracker := auth.NewLockoutTracker(f.repo.Lockouts(), auth.Options{
		MaxLoginAttempts: 3,
		LockoutDuration:  10 * time.Minute,
	})
	assert.Equal(t, 3, tracker.Threshold())
	assert.Equal(t, 10*time.Minute, tracker.Duration())

	now := testEpoch

	state, err := tracker.State(f.ctx, f.db, account.ID)
	require.NoError(t, err)
	assert.Nil(t, state, "state is created lazily")

	locked, err := tracker.IsLocked(f.ctx, f.db, account.ID, now)
	require.NoError(t, err)
	assert.False(t, locked)

	for i := 1; i <= 2; i++ {
		state, lockedNow, err := tracker.RecordFailure(f.ctx, f.db, account.ID, now)
		require.NoError(t, err)
		assert.False(t, lockedNow)
		assert.Equal(t, i, state.FailedAttempts)
		assert.Nil(t, state.LockedUntil)
	}

	state, lockedNow, err := tracker.RecordFailure(f.ctx, f.db, account.ID, now)
	require.NoError(t, err)
	assert.True(t, lockedNow, "the call that reaches the threshold reports the lock")
	assert.Equal(t, 3, state.FailedAttempts)
	require.NotNil(t, state.LockedUntil)
	until := *state.LockedUntil
	assert.True(t, until.Equal(now.Add(10*time.Minute)))

	later := now.Add(5 * time.Minute)
	state, lockedNow, err = tracker.RecordFailure(f.ctx, f.db, account.ID, later)
	require.NoError(t, err)
	assert.True(t, lockedNow)
	assert.Equal(t, 4, state.FailedAttempts)
	assert.True(t, state.LockedUntil.Equal(until), "an active lock is never extended")

	locked, err = tracker.IsLocked(f.ctx, f.db, account.ID, until)
	require.NoError(t, err)
	assert.False(t, locked, "the lock ends at its expiry")

	require.NoError(t, tracker.Reset(f.ctx, f.db, account.ID, until))
	state, err = tracker.State(f.ctx, f.db, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, state.FailedAttempts)
	assert.Nil(t, state.LockedUntil)
}

func TestLockoutTracker_ThresholdOfOne(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "alice", "alice@example.com")

	tracker := auth.NewLockoutTracker(f.repo.Lockouts(), auth.Options{MaxLoginAttempts: 1})

	state, lockedNow, err := tracker.RecordFailure(f.ctx, f.db, account.ID, testEpoch)
	require.NoError(t, err)
	assert.True(t, lockedNow)
	assert.Equal(t, 1, state.FailedAttempts)
	require.NotNil(t, state.LockedUntil)
	assert.True(t, state.LockedUntil.Equal(testEpoch.Add(auth.DefaultLockoutDuration)))
}

func TestLockoutTracker_ResetWithoutState(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "alice", "alice@example.com")

	tracker := auth.NewLockoutTracker(f.repo.Lockouts(), nil)
	require.NoError(t, tracker.Reset(f.ctx, f.db, account.ID, testEpoch))

	state, err := tracker.State(f.ctx, f.db, account.ID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLockout_IsLocked(t *testing.T) {
	until := testEpoch.Add(time.Minute)

	var missing *auth.Lockout
	assert.False(t, missing.IsLocked(testEpoch))
	assert.False(t, (&auth.Lockout{FailedAttempts: 10}).IsLocked(testEpoch))
	assert.True(t, (&auth.Lockout{LockedUntil: &until}).IsLocked(testEpoch))
	assert.False(t, (&auth.Lockout{LockedUntil: &until}).IsLocked(until))
}
