package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LockoutTracker is the brute force state machine. A lock is armed when the
// failure counter reaches the threshold and is judged by its expiry alone.
// Failures during an active lock still count but never push the expiry out.
// Once a lock expires the counter stays at or above the threshold, so the
// next failure re-arms it until a successful login resets the state.
type LockoutTracker struct {
	repo      Lockouts
	threshold int
	duration  time.Duration
}

func NewLockoutTracker(repo Lockouts, cfg Config) *LockoutTracker {
	cfg = configOrDefaults(cfg)
	return &LockoutTracker{
		repo:      repo,
		threshold: cfg.GetMaxLoginAttempts(),
		duration:  cfg.GetLockoutDuration(),
	}
}

func (t *LockoutTracker) Threshold() int {
	return t.threshold
}

func (t *LockoutTracker) Duration() time.Duration {
	return t.duration
}

// State returns the current lockout row, nil when the account never failed.
func (t *LockoutTracker) State(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Lockout, error) {
	return t.repo.GetTx(ctx, tx, accountID)
}

// IsLocked reports whether a lock is active for the account at now.
func (t *LockoutTracker) IsLocked(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) (bool, error) {
	state, err := t.repo.GetTx(ctx, tx, accountID)
	if err != nil {
		return false, err
	}
	return state.IsLocked(now), nil
}

// RecordFailure counts one failed verification. lockedNow is true when the
// lock is active after the increment, which includes the call that crossed
// the threshold.
func (t *LockoutTracker) RecordFailure(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) (state *Lockout, lockedNow bool, err error) {
	state, err = t.repo.IncrementTx(ctx, tx, accountID, t.threshold, now, now.Add(t.duration))
	if err != nil {
		return nil, false, err
	}
	return state, state.IsLocked(now), nil
}

// Reset zeroes the counter and clears the expiry. It is a no-op for accounts
// without lockout state.
func (t *LockoutTracker) Reset(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) error {
	return t.repo.ResetTx(ctx, tx, accountID, now)
}
