package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the persisted identity record
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username      string     `bun:"username,notnull,unique" json:"username"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Active        bool       `bun:"is_active,notnull" json:"is_active"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// Identity views of the account, these never include the hash.

func (a *Account) GetID() string       { return a.ID.String() }
func (a *Account) GetUsername() string { return a.Username }
func (a *Account) GetEmail() string    { return a.Email }
func (a *Account) IsActive() bool      { return a.Active }

var _ Identity = (*Account)(nil)

// LoginAttempt is an immutable audit entry written once per login call.
type LoginAttempt struct {
	bun.BaseModel `bun:"table:login_attempts,alias:la"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	AccountID     *uuid.UUID `bun:"account_id,type:uuid,nullzero" json:"account_id,omitempty"`
	Identifier    string     `bun:"identifier,notnull" json:"identifier"`
	OriginAddress string     `bun:"origin_address" json:"origin_address,omitempty"`
	UserAgent     string     `bun:"user_agent" json:"user_agent,omitempty"`
	Success       bool       `bun:"success,notnull" json:"success"`
	AttemptedAt   time.Time  `bun:"attempted_at,notnull" json:"attempted_at"`
}

// Lockout holds the brute force state of a single account.
type Lockout struct {
	bun.BaseModel  `bun:"table:lockouts,alias:lo"`
	AccountID      uuid.UUID  `bun:"account_id,pk,type:uuid" json:"account_id"`
	FailedAttempts int        `bun:"failed_attempts,notnull" json:"failed_attempts"`
	LockedUntil    *time.Time `bun:"locked_until,nullzero" json:"locked_until,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// IsLocked reports whether the lock is active at now. The lock is evaluated
// from the expiry only, never from the counter.
func (l *Lockout) IsLocked(now time.Time) bool {
	if l == nil || l.LockedUntil == nil {
		return false
	}
	return now.Before(*l.LockedUntil)
}

// RefreshToken is an opaque long lived credential owned by one account.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Token         string    `bun:"token,notnull,unique" json:"-"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Revoked       bool      `bun:"revoked,notnull" json:"revoked"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// IsExpired reports whether the token expiry is at or before now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsValid holds iff the token is not revoked and now < expiry.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return t != nil && !t.Revoked && !t.IsExpired(now)
}

// RefreshTokenState is the lifecycle state of a refresh token.
type RefreshTokenState string

const (
	RefreshTokenActive  RefreshTokenState = "active"
	RefreshTokenRevoked RefreshTokenState = "revoked"
	RefreshTokenExpired RefreshTokenState = "expired"
)

// State derives the lifecycle state. Revoked wins over expired.
func (t *RefreshToken) State(now time.Time) RefreshTokenState {
	switch {
	case t.Revoked:
		return RefreshTokenRevoked
	case t.IsExpired(now):
		return RefreshTokenExpired
	default:
		return RefreshTokenActive
	}
}
