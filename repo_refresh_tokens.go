package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshTokens is the token ledger.
type RefreshTokens interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken) (*RefreshToken, error)
	FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error)
	RevokeTx(ctx context.Context, tx bun.IDB, token string) (bool, error)
	RevokeAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int, error)
	ExpiredIDsTx(ctx context.Context, tx bun.IDB, now time.Time, limit int) ([]uuid.UUID, error)
	DeleteExpiredTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error)
}

type refreshTokens struct {
	repo repository.Repository[*RefreshToken]
}

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	return &refreshTokens{
		repo: repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
			NewRecord: func() *RefreshToken { return &RefreshToken{} },
			GetID: func(r *RefreshToken) uuid.UUID {
				if r == nil {
					return uuid.Nil
				}
				return r.ID
			},
			SetID: func(r *RefreshToken, id uuid.UUID) {
				if r != nil {
					r.ID = id
				}
			},
			GetIdentifier: func() string {
				return "token"
			},
		}),
	}
}

func (r *refreshTokens) CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken) (*RefreshToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.repo.CreateTx(ctx, tx, record)
}

// FindByTokenTx returns a not found error when no record holds token.
func (r *refreshTokens) FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

// RevokeTx flips the revoked flag. The boolean reports whether a record
// matched, revoking twice matches both times.
func (r *refreshTokens) RevokeTx(ctx context.Context, tx bun.IDB, token string) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = ?", true).
		Where("token = ?", token).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *refreshTokens) RevokeAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = ?", true).
		Where("account_id = ?", accountID).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ExpiredIDsTx lists up to limit records whose expiry is strictly before now.
func (r *refreshTokens) ExpiredIDsTx(ctx context.Context, tx bun.IDB, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := tx.NewSelect().
		Model((*RefreshToken)(nil)).
		Column("id").
		Where("?TableAlias.expires_at < ?", now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil && !isNotFound(err) {
		return nil, err
	}
	return ids, nil
}

// DeleteExpiredTx deletes one record, re-checking the expiry so a row that
// was not expired at delete time survives.
func (r *refreshTokens) DeleteExpiredTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error) {
	res, err := tx.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("id = ?", id).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
