// Package guard composes fiber request guards into an explicit pipeline.
// Each guard either passes the request along or returns the rejection that
// a single error handler turns into a response.
package guard

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// AccountKey is the fiber local holding the resolved Account
	AccountKey = "guard.account"

	defaultTokenLookup = "header:" + fiber.HeaderAuthorization
	defaultAuthScheme  = "Bearer"
)

var (
	ErrTokenMissing = goerrors.New("missing access token", goerrors.CategoryAuth).
			WithTextCode("ACCESS_TOKEN_MISSING").
			WithCode(goerrors.CodeUnauthorized)

	ErrAccountInactive = goerrors.New("account is inactive", goerrors.CategoryAuthz).
				WithTextCode(goerrors.TextCodeAccountDisabled).
				WithCode(goerrors.CodeForbidden)

	ErrAccountLocked = goerrors.New("account is locked, try again later", goerrors.CategoryAuthz).
				WithTextCode(goerrors.TextCodeAccountLocked).
				WithCode(goerrors.CodeForbidden)

	ErrNotOwner = goerrors.New("you can only manage your own account", goerrors.CategoryAuthz).
			WithTextCode("NOT_OWNER").
			WithCode(goerrors.CodeForbidden)
)

// Account is the view of the caller the guards need. It mirrors the
// Identity of the auth package without importing it.
type Account interface {
	GetID() string
	IsActive() bool
}

// Resolver turns a raw access credential into the calling account.
type Resolver interface {
	ResolveAccessToken(ctx context.Context, raw string) (Account, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ctx context.Context, raw string) (Account, error)

func (f ResolverFunc) ResolveAccessToken(ctx context.Context, raw string) (Account, error) {
	return f(ctx, raw)
}

// LockChecker reports whether an account is under an active lockout.
type LockChecker interface {
	IsLocked(ctx context.Context, id uuid.UUID) (bool, error)
}

// LockCheckerFunc adapts a function to LockChecker
type LockCheckerFunc func(ctx context.Context, id uuid.UUID) (bool, error)

func (f LockCheckerFunc) IsLocked(ctx context.Context, id uuid.UUID) (bool, error) {
	return f(ctx, id)
}

// Guard returns nil to let the request through.
type Guard func(c *fiber.Ctx) error

// RejectHandler renders a guard rejection.
type RejectHandler func(c *fiber.Ctx, err error) error

// Pipeline runs guards in order and stops at the first rejection.
func Pipeline(onReject RejectHandler, guards ...Guard) fiber.Handler {
	if onReject == nil {
		onReject = defaultReject
	}
	return func(c *fiber.Ctx) error {
		for _, g := range guards {
			if g == nil {
				continue
			}
			if err := g(c); err != nil {
				return onReject(c, err)
			}
		}
		return c.Next()
	}
}

func defaultReject(c *fiber.Ctx, err error) error {
	status := fiber.StatusUnauthorized
	message := err.Error()
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		message = richErr.Message
		if richErr.Code != 0 {
			status = richErr.Code
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// TokenConfig controls where RequireAccessToken looks for the credential.
// TokenLookup follows "header:Authorization,query:access_token,cookie:jwt".
type TokenConfig struct {
	TokenLookup string
	AuthScheme  string
}

// RequireAccessToken resolves the credential and stores the caller under
// AccountKey. Resolver errors are handed to the pipeline unchanged.
func RequireAccessToken(resolver Resolver, cfg ...TokenConfig) Guard {
	var conf TokenConfig
	if len(cfg) > 0 {
		conf = cfg[0]
	}
	if conf.TokenLookup == "" {
		conf.TokenLookup = defaultTokenLookup
	}
	if conf.AuthScheme == "" {
		conf.AuthScheme = defaultAuthScheme
	}
	extractors := GetExtractors(conf.TokenLookup, conf.AuthScheme)

	return func(c *fiber.Ctx) error {
		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return err
		}

		account, err := resolver.ResolveAccessToken(c.UserContext(), raw)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrTokenMissing
		}

		c.Locals(AccountKey, account)
		return nil
	}
}

// RequireActiveAccount rejects deactivated callers. It must follow
// RequireAccessToken.
func RequireActiveAccount() Guard {
	return func(c *fiber.Ctx) error {
		account, ok := AccountFrom(c)
		if !ok {
			return ErrTokenMissing
		}
		if !account.IsActive() {
			return ErrAccountInactive
		}
		return nil
	}
}

// RequireOwner lets the request through only when the route parameter names
// the caller.
func RequireOwner(param string) Guard {
	return func(c *fiber.Ctx) error {
		account, ok := AccountFrom(c)
		if !ok {
			return ErrTokenMissing
		}
		if !strings.EqualFold(strings.TrimSpace(c.Params(param)), account.GetID()) {
			return ErrNotOwner
		}
		return nil
	}
}

// RequireUnlocked rejects callers whose account is locked out. A valid access
// credential outlives a lockout, so mutating routes check the live state.
// Checker failures are handed to the pipeline unchanged.
func RequireUnlocked(checker LockChecker) Guard {
	return func(c *fiber.Ctx) error {
		account, ok := AccountFrom(c)
		if !ok {
			return ErrTokenMissing
		}
		id, err := uuid.Parse(account.GetID())
		if err != nil {
			return ErrTokenMissing
		}
		locked, err := checker.IsLocked(c.UserContext(), id)
		if err != nil {
			return err
		}
		if locked {
			return ErrAccountLocked
		}
		return nil
	}
}

// AccountFrom returns the account stored by RequireAccessToken
func AccountFrom(c *fiber.Ctx) (Account, bool) {
	account, ok := c.Locals(AccountKey).(Account)
	return account, ok && account != nil
}
