package auth

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Models lists every table owned by the package, in creation order.
func Models() []any {
	return []any{
		(*Account)(nil),
		(*LoginAttempt)(nil),
		(*Lockout)(nil),
		(*RefreshToken)(nil),
	}
}

var schemaIndexes = []struct {
	model   any
	name    string
	columns []string
	unique  bool
}{
	{(*Account)(nil), "accounts_username_uidx", []string{"username"}, true},
	{(*Account)(nil), "accounts_email_uidx", []string{"email"}, true},
	{(*LoginAttempt)(nil), "login_attempts_identifier_idx", []string{"identifier"}, false},
	{(*LoginAttempt)(nil), "login_attempts_attempted_at_idx", []string{"attempted_at"}, false},
	{(*Lockout)(nil), "lockouts_locked_until_idx", []string{"locked_until"}, false},
	{(*RefreshToken)(nil), "refresh_tokens_token_uidx", []string{"token"}, true},
	{(*RefreshToken)(nil), "refresh_tokens_account_id_idx", []string{"account_id"}, false},
	{(*RefreshToken)(nil), "refresh_tokens_expires_at_idx", []string{"expires_at"}, false},
}

// CreateSchema creates the tables and indexes if they are missing. It is
// safe to run on every start.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	for _, idx := range schemaIndexes {
		q := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}

	return nil
}
