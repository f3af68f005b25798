package auth

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
)

// Text codes tell the core failures apart. Several of them share one public
// message so that callers cannot tell which check rejected a request.
const (
	TextCodeDuplicateIdentity  = "DUPLICATE_IDENTITY"
	TextCodeInvalidCredentials = goerrors.TextCodeInvalidCredentials
	TextCodeAccountLocked      = goerrors.TextCodeAccountLocked
	TextCodeTokenNotFound      = "TOKEN_NOT_FOUND"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodePersistence        = "PERSISTENCE_ERROR"
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeAccessMissing      = "ACCESS_TOKEN_MISSING"
	TextCodeAccessInvalid      = "ACCESS_TOKEN_INVALID"
	TextCodeAccessExpired      = "ACCESS_TOKEN_EXPIRED"
)

// Public messages.
const (
	MsgInvalidCredentials = "invalid username or password"
	MsgAccountLocked      = "account is locked, try again later"
	MsgInvalidRefresh     = "invalid or expired refresh token"
	MsgInternal           = "internal error, try again later"
	MsgInvalidInput       = "invalid input"
	MsgAccountNotFound    = "account not found"
	MsgAccessMissing      = "missing access token"
	MsgAccessInvalid      = "invalid access token"
	MsgAccessExpired      = "access token expired"
)

// Sentinel errors. Message is safe to show to a client, Source only ever
// holds the internal cause for logs.
var (
	ErrDuplicateIdentity = goerrors.New(MsgInvalidCredentials, goerrors.CategoryConflict).
				WithTextCode(TextCodeDuplicateIdentity).
				WithCode(goerrors.CodeBadRequest)

	ErrInvalidCredentials = goerrors.New(MsgInvalidCredentials, goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	ErrAccountLocked = goerrors.New(MsgAccountLocked, goerrors.CategoryAuth).
				WithTextCode(TextCodeAccountLocked).
				WithCode(http.StatusLocked)

	ErrTokenNotFound = goerrors.New(MsgInvalidRefresh, goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenNotFound).
				WithCode(goerrors.CodeUnauthorized)

	ErrTokenInvalid = goerrors.New(MsgInvalidRefresh, goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenInvalid).
			WithCode(goerrors.CodeUnauthorized)

	ErrPersistence = goerrors.New(MsgInternal, goerrors.CategoryInternal).
			WithTextCode(TextCodePersistence).
			WithCode(goerrors.CodeInternal)

	ErrValidation = goerrors.New(MsgInvalidInput, goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)

	ErrAccountNotFound = goerrors.New(MsgAccountNotFound, goerrors.CategoryNotFound).
				WithTextCode(TextCodeAccountNotFound).
				WithCode(goerrors.CodeNotFound)

	ErrAccessMissing = goerrors.New(MsgAccessMissing, goerrors.CategoryAuth).
				WithTextCode(TextCodeAccessMissing).
				WithCode(goerrors.CodeUnauthorized)

	ErrAccessInvalid = goerrors.New(MsgAccessInvalid, goerrors.CategoryAuth).
				WithTextCode(TextCodeAccessInvalid).
				WithCode(goerrors.CodeUnauthorized)

	ErrAccessExpired = goerrors.New(MsgAccessExpired, goerrors.CategoryAuth).
				WithTextCode(TextCodeAccessExpired).
				WithCode(goerrors.CodeUnauthorized)
)

// TextCodeOf returns the text code of a core error, or "" for foreign errors.
func TextCodeOf(err error) string {
	var e *goerrors.Error
	if goerrors.As(err, &e) {
		return e.TextCode
	}
	return ""
}

// withCause copies base and attaches cause. Sentinels are never mutated.
func withCause(base *goerrors.Error, cause error) *goerrors.Error {
	e := base.Clone()
	e.Source = cause
	return e
}

// NewValidationError builds a validation error carrying per field reasons.
func NewValidationError(fields map[string]string, cause error) *goerrors.Error {
	e := goerrors.NewValidationFromMap(MsgInvalidInput, fields).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
	e.Source = cause
	return e
}

func persistenceError(cause error) error {
	if cause == nil {
		return nil
	}
	var e *goerrors.Error
	if goerrors.As(cause, &e) && e.TextCode != "" {
		return e
	}
	return withCause(ErrPersistence, cause)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

// isUniqueViolation reports whether err comes from a unique constraint on
// either supported dialect.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// asRetryable marks storage failures worth a second attempt: serialization
// failures, deadlocks, a busy sqlite file and dropped connections. Domain
// errors and cancellations pass through unchanged.
func asRetryable(err error) error {
	if err == nil {
		return err
	}
	if code := TextCodeOf(err); code != "" && code != TextCodePersistence {
		return err
	}
	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return err
	}

	transient := goerrors.Is(err, driver.ErrBadConn)
	var pgErr *pgconn.PgError
	switch {
	case transient:
	case goerrors.As(err, &pgErr):
		transient = pgErr.Code == "40001" || pgErr.Code == "40P01"
	default:
		msg := err.Error()
		transient = strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
	}
	if !transient {
		return err
	}
	return goerrors.WrapRetryable(err, goerrors.CategoryOperation, "transient storage failure")
}

// retryOnce runs fn a second time when the first failure is retryable.
func retryOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if !goerrors.IsRetryableError(asRetryable(err)) || ctx.Err() != nil {
		return err
	}
	return fn(ctx)
}
