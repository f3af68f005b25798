package auth

import (
	"context"
	"fmt"
	"time"
)

// CleanupExpiredTokensMessage asks for one pass over the refresh token ledger.
type CleanupExpiredTokensMessage struct {
	Timeout time.Duration
}

func (e CleanupExpiredTokensMessage) Type() string { return "refresh_tokens.cleanup" }

type CleanupExpiredTokensHandler struct {
	tokens *TokenService
	logger Logger
	// Deleted holds the count of the last run.
	Deleted int
}

func NewCleanupExpiredTokensHandler(tokens *TokenService, logger Logger) *CleanupExpiredTokensHandler {
	return &CleanupExpiredTokensHandler{
		tokens: tokens,
		logger: ResolveLogger("cleanup", logger),
	}
}

func (h *CleanupExpiredTokensHandler) Execute(ctx context.Context, event CleanupExpiredTokensMessage) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled before token cleanup: %w", ctx.Err())
	default:
		return h.execute(ctx, event)
	}
}

func (h *CleanupExpiredTokensHandler) execute(ctx context.Context, event CleanupExpiredTokensMessage) error {
	if event.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, event.Timeout)
		defer cancel()
	}

	started := time.Now()
	deleted, err := h.tokens.CleanupExpiredTokens(ctx)
	h.Deleted = deleted
	if err != nil {
		h.logger.Error("token cleanup failed", "deleted", deleted, "error", err)
		return err
	}

	h.logger.Debug("token cleanup pass", "deleted", deleted, "took", time.Since(started))
	return nil
}

// RunCleanupEvery executes the handler on every tick until ctx is done.
// Failed passes are logged and the loop keeps going.
func RunCleanupEvery(ctx context.Context, interval time.Duration, h *CleanupExpiredTokensHandler, msg CleanupExpiredTokensMessage) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = h.Execute(ctx, msg)
		}
	}
}
