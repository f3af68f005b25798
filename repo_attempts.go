package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LoginAttempts is the append only attempt ledger. Records are never updated.
type LoginAttempts interface {
	RecordTx(ctx context.Context, tx bun.IDB, attempt *LoginAttempt) (*LoginAttempt, error)
	CountTx(ctx context.Context, tx bun.IDB, identifier string) (int, error)
	ListTx(ctx context.Context, tx bun.IDB, identifier string, limit int) ([]*LoginAttempt, error)
}

type loginAttempts struct {
	repo repository.Repository[*LoginAttempt]
}

func NewLoginAttemptsRepository(db *bun.DB) LoginAttempts {
	return &loginAttempts{
		repo: repository.NewRepository[*LoginAttempt](db, repository.ModelHandlers[*LoginAttempt]{
			NewRecord: func() *LoginAttempt { return &LoginAttempt{} },
			GetID: func(r *LoginAttempt) uuid.UUID {
				if r == nil {
					return uuid.Nil
				}
				return r.ID
			},
			SetID: func(r *LoginAttempt, id uuid.UUID) {
				if r != nil {
					r.ID = id
				}
			},
		}),
	}
}

func (l *loginAttempts) RecordTx(ctx context.Context, tx bun.IDB, attempt *LoginAttempt) (*LoginAttempt, error) {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = utcNow()
	}
	return l.repo.CreateTx(ctx, tx, attempt)
}

// CountTx counts the attempts recorded for identifier. An empty identifier
// counts every attempt.
func (l *loginAttempts) CountTx(ctx context.Context, tx bun.IDB, identifier string) (int, error) {
	q := tx.NewSelect().Model((*LoginAttempt)(nil))
	if identifier != "" {
		q = q.Where("?TableAlias.identifier = ?", identifier)
	}
	return q.Count(ctx)
}

// ListTx returns the most recent attempts first.
func (l *loginAttempts) ListTx(ctx context.Context, tx bun.IDB, identifier string, limit int) ([]*LoginAttempt, error) {
	var records []*LoginAttempt
	q := tx.NewSelect().
		Model(&records).
		Order("attempted_at DESC")
	if identifier != "" {
		q = q.Where("?TableAlias.identifier = ?", identifier)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil && !isNotFound(err) {
		return nil, err
	}
	return records, nil
}
