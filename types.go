package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Arguments are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an authenticated account
type Identity interface {
	GetID() string
	GetUsername() string
	GetEmail() string
	IsActive() bool
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetMaxLoginAttempts() int
	GetLockoutDuration() time.Duration
	GetPasswordMinLength() int
	GetPasswordHashCost() int
}

// PasswordHasher is the salted adaptive hash contract. Verify must report a
// malformed digest as a mismatch.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

// AccessTokenMinter produces and checks short lived access credentials.
type AccessTokenMinter interface {
	Mint(accountID string) (string, time.Time, error)
	Verify(raw string) (*JWTClaims, error)
}

// Clock returns the current time. Services use UTC.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// RegisterRequest is the input to CredentialService.Register
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the input to CredentialService.Login. OriginAddress and
// UserAgent are copied into the attempt ledger.
type LoginRequest struct {
	Identifier    string `json:"username"`
	Password      string `json:"password"`
	OriginAddress string `json:"-"`
	UserAgent     string `json:"-"`
}

// UpdateAccountRequest carries optional changes, nil fields are untouched.
type UpdateAccountRequest struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// TokenPair is what a successful login or registration hands back.
type TokenPair struct {
	Account          *Account  `json:"account"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// AccountPage is a page of accounts.
type AccountPage struct {
	Accounts []*Account `json:"accounts"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PerPage  int        `json:"per_page"`
	Pages    int        `json:"pages"`
}

// CredentialAPI is the surface the HTTP controller consumes.
type CredentialAPI interface {
	FindAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	IsLocked(ctx context.Context, id uuid.UUID) (bool, error)
	ListAccounts(ctx context.Context, page, perPage int) (*AccountPage, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*Account, error)
	DeactivateAccount(ctx context.Context, id uuid.UUID) (*Account, error)
}
