package auth

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestAsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "bad connection", err: driver.ErrBadConn, want: true},
		{name: "wrapped in persistence", err: withCause(ErrPersistence, driver.ErrBadConn), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "domain error", err: ErrInvalidCredentials, want: false},
		{name: "plain error", err: errors.New("syntax error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, goerrors.IsRetryableError(asRetryable(tt.err)))
		})
	}
	assert.Nil(t, asRetryable(nil))
}

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("retries a transient failure once", func(t *testing.T) {
		calls := 0
		err := retryOnce(ctx, func(context.Context) error {
			calls++
			return errors.New("database is locked")
		})
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("second attempt can succeed", func(t *testing.T) {
		calls := 0
		err := retryOnce(ctx, func(context.Context) error {
			calls++
			if calls == 1 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("domain errors are final", func(t *testing.T) {
		calls := 0
		err := retryOnce(ctx, func(context.Context) error {
			calls++
			return ErrDuplicateIdentity
		})
		assert.Equal(t, TextCodeDuplicateIdentity, TextCodeOf(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context is not retried", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		_ = retryOnce(cancelled, func(context.Context) error {
			calls++
			return driver.ErrBadConn
		})
		assert.Equal(t, 1, calls)
	})
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("pq: relation accounts does not exist")
	err := persistenceError(cause)

	assert.Equal(t, TextCodePersistence, TextCodeOf(err))
	assert.ErrorIs(t, err, cause)

	var richErr *goerrors.Error
	assert.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, MsgInternal, richErr.Message)
	assert.Nil(t, ErrPersistence.Source, "the sentinel is never mutated")

	assert.Same(t, ErrTokenInvalid, persistenceError(ErrTokenInvalid))
	assert.Nil(t, persistenceError(nil))
}
