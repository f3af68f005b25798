package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IncrementLockoutSQL creates the lockout row on first failure and bumps the
// counter in a single statement. The expiry is only armed when the new count
// reaches the threshold and no lock is active, so a running lock is never
// extended.
var IncrementLockoutSQL = `INSERT INTO "lockouts" AS "lo"
	("account_id", "failed_attempts", "locked_until", "created_at", "updated_at")
VALUES
	(?, 1, ?, ?, ?)
ON CONFLICT ("account_id") DO UPDATE SET
	"failed_attempts" = "lo"."failed_attempts" + 1,
	"updated_at" = EXCLUDED."updated_at",
	"locked_until" = CASE
		WHEN "lo"."failed_attempts" + 1 >= ?
			AND ("lo"."locked_until" IS NULL OR "lo"."locked_until" <= ?)
		THEN ?
		ELSE "lo"."locked_until"
	END
RETURNING *`

// ResetLockoutSQL zeroes the counter and clears the expiry of an existing row.
var ResetLockoutSQL = `UPDATE "lockouts"
SET
	"failed_attempts" = 0,
	"locked_until" = NULL,
	"updated_at" = ?
WHERE
	"account_id" = ?`

// Lockouts persists the per account brute force state.
type Lockouts interface {
	GetTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Lockout, error)
	IncrementTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, threshold int, now, lockUntil time.Time) (*Lockout, error)
	ResetTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) error
}

type lockouts struct {
	db *bun.DB
}

func NewLockoutsRepository(db *bun.DB) Lockouts {
	return &lockouts{db: db}
}

// GetTx returns nil without error when the account never failed a login.
func (l *lockouts) GetTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Lockout, error) {
	record := &Lockout{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (l *lockouts) IncrementTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, threshold int, now, lockUntil time.Time) (*Lockout, error) {
	// a threshold of one locks on the very first failure
	var firstLock *time.Time
	if threshold <= 1 {
		firstLock = &lockUntil
	}

	record := &Lockout{}
	err := tx.NewRaw(IncrementLockoutSQL,
		accountID, firstLock, now, now,
		threshold, now, lockUntil,
	).Scan(ctx, record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (l *lockouts) ResetTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) error {
	_, err := tx.NewRaw(ResetLockoutSQL, now, accountID).Exec(ctx)
	return err
}
