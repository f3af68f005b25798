package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// RefreshTokenBytes is the entropy of a refresh token, 512 bits.
	RefreshTokenBytes = 64

	cleanupBatchSize = 100
	issueAttempts    = 2
)

// TokenService issues, validates, revokes and garbage collects refresh
// tokens. It never caches records, every call reads the ledger.
type TokenService struct {
	repo     RepositoryManager
	ttl      time.Duration
	logger   Logger
	activity ActivitySink
	clock    Clock
	batch    int
}

type TokenServiceOption func(*TokenService)

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(s *TokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTokenClock(clock Clock) TokenServiceOption {
	return func(s *TokenService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithTokenActivitySink(sink ActivitySink) TokenServiceOption {
	return func(s *TokenService) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithCleanupBatchSize bounds how many expired IDs one cleanup scan reads.
func WithCleanupBatchSize(n int) TokenServiceOption {
	return func(s *TokenService) {
		if n > 0 {
			s.batch = n
		}
	}
}

func NewTokenService(repo RepositoryManager, cfg Config, opts ...TokenServiceOption) *TokenService {
	s := &TokenService{
		repo:     repo,
		ttl:      configOrDefaults(cfg).GetRefreshTokenTTL(),
		logger:   ResolveLogger("refresh_tokens", nil),
		activity: noopActivitySink{},
		clock:    utcNow,
		batch:    cleanupBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GenerateOpaqueToken returns n random bytes encoded as unpadded base64url.
func GenerateOpaqueToken(n int) (string, error) {
	if n <= 0 {
		n = RefreshTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueRefreshToken persists a new token for accountID. A unique collision
// on the token value is retried once with fresh randomness.
func (s *TokenService) IssueRefreshToken(ctx context.Context, accountID uuid.UUID) (*RefreshToken, error) {
	var (
		record *RefreshToken
		err    error
	)
	for i := 0; i < issueAttempts; i++ {
		record, err = s.issue(ctx, s.repo.DB(), accountID)
		if err == nil || !isUniqueViolation(err) {
			break
		}
		s.logger.Warn("refresh token collision, retrying", "account_id", accountID)
	}
	if err != nil {
		s.logger.Error("refresh token issue failed", "account_id", accountID, "error", err)
		return nil, persistenceError(err)
	}

	emit(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventTokenIssued,
		AccountID:  accountID.String(),
		OccurredAt: record.CreatedAt,
	})
	return record, nil
}

func (s *TokenService) issue(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*RefreshToken, error) {
	raw, err := GenerateOpaqueToken(RefreshTokenBytes)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	record := &RefreshToken{
		AccountID: accountID,
		Token:     raw,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	var created *RefreshToken
	err = retryOnce(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.RefreshTokens().CreateTx(ctx, tx, record)
		return err
	})
	return created, err
}

// ValidateRefreshToken returns the record when it is active. An unknown
// token fails with ErrTokenNotFound, a revoked or expired one with
// ErrTokenInvalid. Both carry the same public message.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	if token == "" {
		s.reject(ctx, "", "empty")
		return nil, ErrTokenNotFound
	}

	var record *RefreshToken
	err := retryOnce(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.repo.RefreshTokens().FindByTokenTx(ctx, s.repo.DB(), token)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			s.reject(ctx, "", "not_found")
			return nil, ErrTokenNotFound
		}
		s.logger.Error("refresh token lookup failed", "error", err)
		return nil, persistenceError(err)
	}

	if state := record.State(s.clock().UTC()); state != RefreshTokenActive {
		s.reject(ctx, record.AccountID.String(), string(state))
		return nil, ErrTokenInvalid
	}

	return record, nil
}

func (s *TokenService) reject(ctx context.Context, accountID, reason string) {
	s.logger.Info("refresh token rejected", "account_id", accountID, "reason", reason)
	emit(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventTokenRejected,
		AccountID: accountID,
		Reason:    reason,
	})
}

// RevokeRefreshToken marks the token revoked. Unknown tokens are a no-op.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	var found bool
	err := retryOnce(ctx, func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			found, err = s.repo.RefreshTokens().RevokeTx(ctx, tx, token)
			return err
		})
	})
	if err != nil {
		s.logger.Error("refresh token revoke failed", "error", err)
		return persistenceError(err)
	}

	if found {
		s.logger.Debug("refresh token revoked")
		emit(ctx, s.activity, s.logger, ActivityEvent{EventType: ActivityEventTokenRevoked})
	}
	return nil
}

// CleanupExpiredTokens deletes every record whose expiry is strictly before
// the scan time, revoked or not. Rows are deleted one at a time and each
// delete re-checks the expiry, so live traffic is never blocked behind a
// bulk delete. It returns how many rows were removed.
func (s *TokenService) CleanupExpiredTokens(ctx context.Context) (int, error) {
	now := s.clock().UTC()
	deleted := 0

	for {
		if err := ctx.Err(); err != nil {
			return deleted, persistenceError(err)
		}

		var ids []uuid.UUID
		err := retryOnce(ctx, func(ctx context.Context) error {
			var err error
			ids, err = s.repo.RefreshTokens().ExpiredIDsTx(ctx, s.repo.DB(), now, s.batch)
			return err
		})
		if err != nil {
			s.logger.Error("refresh token cleanup scan failed", "error", err)
			return deleted, persistenceError(err)
		}

		removed := 0
		for _, id := range ids {
			var ok bool
			err := retryOnce(ctx, func(ctx context.Context) error {
				var err error
				ok, err = s.repo.RefreshTokens().DeleteExpiredTx(ctx, s.repo.DB(), id, now)
				return err
			})
			if err != nil {
				s.logger.Error("refresh token cleanup delete failed", "error", err)
				return deleted, persistenceError(err)
			}
			if ok {
				removed++
			}
		}
		deleted += removed

		if len(ids) < s.batch || removed == 0 {
			break
		}
	}

	s.logger.Info("refresh token cleanup finished", "deleted", deleted)
	emit(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventTokensCleaned,
		Metadata:   map[string]any{"deleted": deleted},
		OccurredAt: now,
	})
	return deleted, nil
}
