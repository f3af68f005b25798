package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	LoginAttempts() LoginAttempts
	Lockouts() Lockouts
	RefreshTokens() RefreshTokens
	DB() *bun.DB
}

type mngr struct {
	db            *bun.DB
	accounts      Accounts
	loginAttempts LoginAttempts
	lockouts      Lockouts
	refreshTokens RefreshTokens
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		accounts:      NewAccountsRepository(db),
		loginAttempts: NewLoginAttemptsRepository(db),
		lockouts:      NewLockoutsRepository(db),
		refreshTokens: NewRefreshTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database handle should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.loginAttempts == nil {
		return errors.New("repository loginAttempts should be initialized")
	}

	if m.lockouts == nil {
		return errors.New("repository lockouts should be initialized")
	}

	if m.refreshTokens == nil {
		return errors.New("repository refreshTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx commits when f returns nil and rolls back otherwise, including
// when ctx is cancelled before commit.
func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() *bun.DB {
	return m.db
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) LoginAttempts() LoginAttempts {
	return m.loginAttempts
}

func (m mngr) Lockouts() Lockouts {
	return m.lockouts
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}
