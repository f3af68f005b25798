package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AccessTokenService mints and verifies HS256 access credentials.
type AccessTokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	clock      Clock
}

var _ AccessTokenMinter = (*AccessTokenService)(nil)

type AccessTokenOption func(*AccessTokenService)

func WithAccessTokenLogger(logger Logger) AccessTokenOption {
	return func(s *AccessTokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAccessTokenClock(clock Clock) AccessTokenOption {
	return func(s *AccessTokenService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewAccessTokenService fails when the config carries no signing key.
func NewAccessTokenService(cfg Config, opts ...AccessTokenOption) (*AccessTokenService, error) {
	cfg = configOrDefaults(cfg)
	key := cfg.GetSigningKey()
	if strings.TrimSpace(key) == "" {
		return nil, goerrors.New("access token signing key must not be empty", goerrors.CategoryBadInput).
			WithTextCode("SIGNING_KEY_MISSING")
	}

	var aud jwt.ClaimStrings
	if len(cfg.GetAudience()) > 0 {
		aud = append(aud, cfg.GetAudience()...)
	}

	s := &AccessTokenService{
		signingKey: []byte(key),
		ttl:        cfg.GetAccessTokenTTL(),
		issuer:     cfg.GetIssuer(),
		audience:   aud,
		logger:     ResolveLogger("access_token", nil),
		clock:      utcNow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// TTL returns the lifetime of minted credentials
func (s *AccessTokenService) TTL() time.Duration {
	return s.ttl
}

// Mint signs a credential for accountID and returns it with its expiry.
func (s *AccessTokenService) Mint(accountID string) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, goerrors.New("account id must not be empty", goerrors.CategoryBadInput)
	}

	now := s.clock().UTC().Truncate(time.Second)
	expires := now.Add(s.ttl)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   accountID,
			Audience:  s.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		UID:       accountID,
		TokenType: accessTokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, expires, nil
}

// Verify rejects a missing credential with ErrAccessMissing, an expired one
// with ErrAccessExpired and anything else that fails to verify with
// ErrAccessInvalid.
func (s *AccessTokenService) Verify(raw string) (*JWTClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrAccessMissing
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Warn("access token with unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, withCause(ErrAccessExpired, err)
		}
		return nil, withCause(ErrAccessInvalid, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.TokenType != accessTokenType || claims.AccountID() == "" {
		return nil, ErrAccessInvalid
	}

	return claims, nil
}
