package auth

import (
	"time"
)

const (
	DefaultMaxLoginAttempts  = 5
	DefaultLockoutDuration   = 30 * time.Minute
	DefaultRefreshTokenTTL   = 7 * 24 * time.Hour
	DefaultAccessTokenTTL    = 15 * time.Minute
	DefaultPasswordMinLength = 8
	DefaultPasswordHashCost  = 12
)

// Options is a plain Config implementation. Zero fields fall back to the
// package defaults.
type Options struct {
	SigningKey        string
	Issuer            string
	Audience          []string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	MaxLoginAttempts  int
	LockoutDuration   time.Duration
	PasswordMinLength int
	PasswordHashCost  int
}

var _ Config = Options{}

// DefaultOptions returns Options populated with the package defaults.
func DefaultOptions() Options {
	return Options{
		AccessTokenTTL:    DefaultAccessTokenTTL,
		RefreshTokenTTL:   DefaultRefreshTokenTTL,
		MaxLoginAttempts:  DefaultMaxLoginAttempts,
		LockoutDuration:   DefaultLockoutDuration,
		PasswordMinLength: DefaultPasswordMinLength,
		PasswordHashCost:  DefaultPasswordHashCost,
	}
}

func (o Options) GetSigningKey() string { return o.SigningKey }
func (o Options) GetIssuer() string     { return o.Issuer }
func (o Options) GetAudience() []string { return o.Audience }

func (o Options) GetAccessTokenTTL() time.Duration {
	return durationOr(o.AccessTokenTTL, DefaultAccessTokenTTL)
}

func (o Options) GetRefreshTokenTTL() time.Duration {
	return durationOr(o.RefreshTokenTTL, DefaultRefreshTokenTTL)
}

func (o Options) GetMaxLoginAttempts() int {
	return intOr(o.MaxLoginAttempts, DefaultMaxLoginAttempts)
}

func (o Options) GetLockoutDuration() time.Duration {
	return durationOr(o.LockoutDuration, DefaultLockoutDuration)
}

func (o Options) GetPasswordMinLength() int {
	return intOr(o.PasswordMinLength, DefaultPasswordMinLength)
}

func (o Options) GetPasswordHashCost() int {
	return intOr(o.PasswordHashCost, DefaultPasswordHashCost)
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// configOrDefaults guards against a nil Config.
func configOrDefaults(cfg Config) Config {
	if cfg == nil {
		return DefaultOptions()
	}
	return cfg
}
