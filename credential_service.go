package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Internal rejection causes. They reach logs and telemetry, never clients.
const (
	reasonUnknownIdentifier = "unknown_identifier"
	reasonLocked            = "locked"
	reasonInactive          = "inactive"
	reasonBadSecret         = "bad_secret"
	reasonLockEngaged       = "lock_engaged"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// CredentialService handles registration, login and account self service.
type CredentialService struct {
	repo      RepositoryManager
	cfg       Config
	hasher    PasswordHasher
	lockout   *LockoutTracker
	logger    Logger
	activity  ActivitySink
	clock     Clock
	hashidIDs bool

	decoyOnce   sync.Once
	decoyDigest string
}

var _ CredentialAPI = (*CredentialService)(nil)

type CredentialServiceOption func(*CredentialService)

func WithCredentialLogger(logger Logger) CredentialServiceOption {
	return func(s *CredentialService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCredentialClock(clock Clock) CredentialServiceOption {
	return func(s *CredentialService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithCredentialActivitySink(sink ActivitySink) CredentialServiceOption {
	return func(s *CredentialService) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithPasswordHasher(hasher PasswordHasher) CredentialServiceOption {
	return func(s *CredentialService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithHashidAccountIDs derives account IDs from the email address so that
// the same email always maps to the same ID across environments.
func WithHashidAccountIDs(enabled bool) CredentialServiceOption {
	return func(s *CredentialService) {
		s.hashidIDs = enabled
	}
}

func NewCredentialService(repo RepositoryManager, cfg Config, opts ...CredentialServiceOption) *CredentialService {
	cfg = configOrDefaults(cfg)
	s := &CredentialService{
		repo:     repo,
		cfg:      cfg,
		hasher:   NewBcryptHasher(cfg.GetPasswordHashCost()),
		lockout:  NewLockoutTracker(repo.Lockouts(), cfg),
		logger:   ResolveLogger("credentials", nil),
		activity: noopActivitySink{},
		clock:    utcNow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Lockout exposes the tracker, mostly for operators and tests.
func (s *CredentialService) Lockout() *LockoutTracker {
	return s.lockout
}

func (s *CredentialService) now() time.Time {
	return s.clock().UTC()
}

// Register creates an active account. Username and email collisions both
// fail with the uniform credentials message.
func (s *CredentialService) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normalizeEmail(req.Email)

	if err := validateRegister(req, s.cfg.GetPasswordMinLength()); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		return nil, persistenceError(err)
	}

	id := uuid.New()
	if s.hashidIDs {
		if hid, err := hashid.NewUUID(req.Email); err == nil {
			id = hid
		}
	}

	var account *Account
	err = retryOnce(ctx, func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			exists, err := s.repo.Accounts().ExistsTx(ctx, tx, req.Username, req.Email, uuid.Nil)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdentity
			}

			now := s.now()
			record := &Account{
				ID:           id,
				Username:     req.Username,
				Email:        req.Email,
				PasswordHash: digest,
				Active:       true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			created, err := s.repo.Accounts().RegisterTx(ctx, tx, record)
			if err != nil {
				if isUniqueViolation(err) {
					return withCause(ErrDuplicateIdentity, err)
				}
				return err
			}
			account = created
			return nil
		})
	})

	if err != nil {
		if TextCodeOf(err) == TextCodeDuplicateIdentity {
			s.logger.Info("registration rejected", "reason", "duplicate_identity")
			return nil, err
		}
		s.logger.Error("registration failed", "error", err)
		return nil, persistenceError(err)
	}

	s.logger.Info("account registered", "account_id", account.ID)
	emit(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventRegistered,
		AccountID:  account.GetID(),
		OccurredAt: account.CreatedAt,
	})

	return account, nil
}

type loginOutcome struct {
	account *Account
	err     error
	locked  bool
	reason  string
	failed  int
}

// Login verifies a secret for a username or email. Every call writes exactly
// one attempt record in the same transaction as the lockout update. The
// boolean result is true when the account is locked.
func (s *CredentialService) Login(ctx context.Context, req LoginRequest) (*Account, bool, error) {
	if err := validateLogin(req); err != nil {
		return nil, false, err
	}

	var out loginOutcome
	err := retryOnce(ctx, func(ctx context.Context) error {
		out = loginOutcome{}
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return s.login(ctx, tx, req, &out)
		})
	})

	if err != nil {
		s.logger.Error("login failed", "error", err)
		return nil, false, persistenceError(err)
	}

	s.reportLogin(ctx, req, out)

	if out.err != nil {
		return nil, out.locked, out.err
	}
	return out.account, false, nil
}

func (s *CredentialService) login(ctx context.Context, tx bun.IDB, req LoginRequest, out *loginOutcome) error {
	now := s.now()
	attempt := &LoginAttempt{
		Identifier:    strings.TrimSpace(req.Identifier),
		OriginAddress: req.OriginAddress,
		UserAgent:     req.UserAgent,
		AttemptedAt:   now,
	}

	reject := func(err error, locked bool, reason string) error {
		out.err, out.locked, out.reason = err, locked, reason
		_, rerr := s.repo.LoginAttempts().RecordTx(ctx, tx, attempt)
		return rerr
	}

	account, err := s.repo.Accounts().FindByIdentifierTx(ctx, tx, attempt.Identifier)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		s.burnDecoy(req.Password)
		return reject(ErrInvalidCredentials, false, reasonUnknownIdentifier)
	}
	attempt.AccountID = &account.ID
	out.account = account

	state, err := s.lockout.State(ctx, tx, account.ID)
	if err != nil {
		return err
	}
	if state.IsLocked(now) {
		out.failed = state.FailedAttempts
		return reject(ErrAccountLocked, true, reasonLocked)
	}

	if !account.Active {
		s.burnDecoy(req.Password)
		return reject(ErrInvalidCredentials, false, reasonInactive)
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		state, lockedNow, err := s.lockout.RecordFailure(ctx, tx, account.ID, now)
		if err != nil {
			return err
		}
		out.failed = state.FailedAttempts
		if lockedNow {
			return reject(ErrAccountLocked, true, reasonLockEngaged)
		}
		return reject(ErrInvalidCredentials, false, reasonBadSecret)
	}

	if state != nil {
		if err := s.lockout.Reset(ctx, tx, account.ID, now); err != nil {
			return err
		}
	}

	if err := s.repo.Accounts().TrackSuccessfulLoginTx(ctx, tx, account.ID, now); err != nil {
		return err
	}
	account.LastLoginAt = &now
	account.UpdatedAt = now

	attempt.Identifier = account.Username
	attempt.Success = true
	if _, err := s.repo.LoginAttempts().RecordTx(ctx, tx, attempt); err != nil {
		return err
	}

	out.account = account
	return nil
}

func (s *CredentialService) reportLogin(ctx context.Context, req LoginRequest, out loginOutcome) {
	var accountID string
	if out.account != nil {
		accountID = out.account.GetID()
	}

	if out.err == nil {
		s.logger.Info("login succeeded", "account_id", accountID, "origin", req.OriginAddress)
		emit(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLoginSuccess,
			AccountID: accountID,
		})
		return
	}

	s.logger.Info("login rejected",
		"account_id", accountID,
		"reason", out.reason,
		"failed_attempts", out.failed,
		"origin", req.OriginAddress,
	)
	emit(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		AccountID: accountID,
		Reason:    out.reason,
		Metadata:  map[string]any{"failed_attempts": out.failed},
	})

	if out.reason == reasonLockEngaged {
		s.logger.Warn("account locked", "account_id", accountID, "duration", s.lockout.Duration())
		emit(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventAccountLocked,
			AccountID: accountID,
			Reason:    out.reason,
			Metadata:  map[string]any{"failed_attempts": out.failed},
		})
	}
}

// burnDecoy spends one verification on branches that never reach the real
// digest, so they take about as long as a wrong password.
func (s *CredentialService) burnDecoy(secret string) {
	s.decoyOnce.Do(func() {
		s.decoyDigest, _ = s.hasher.Hash("decoy-secret-never-matches")
	})
	s.hasher.Verify(secret, s.decoyDigest)
}

// FindAccount loads an account by ID.
func (s *CredentialService) FindAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var account *Account
	err := retryOnce(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.repo.Accounts().FindByIDTx(ctx, s.repo.DB(), id)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, withCause(ErrAccountNotFound, err)
		}
		return nil, persistenceError(err)
	}
	return account, nil
}

// IsLocked reports whether the account is under an active lockout right now.
func (s *CredentialService) IsLocked(ctx context.Context, id uuid.UUID) (bool, error) {
	var locked bool
	err := retryOnce(ctx, func(ctx context.Context) error {
		var err error
		locked, err = s.lockout.IsLocked(ctx, s.repo.DB(), id, s.now())
		return err
	})
	if err != nil {
		return false, persistenceError(err)
	}
	return locked, nil
}

// ListAccounts returns one page of accounts. Pages start at 1.
func (s *CredentialService) ListAccounts(ctx context.Context, page, perPage int) (*AccountPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	var (
		records []*Account
		total   int
	)
	err := retryOnce(ctx, func(ctx context.Context) error {
		var err error
		records, total, err = s.repo.Accounts().PageTx(ctx, s.repo.DB(), (page-1)*perPage, perPage)
		return err
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	if records == nil {
		records = []*Account{}
	}

	return &AccountPage{
		Accounts: records,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
		Pages:    (total + perPage - 1) / perPage,
	}, nil
}

// UpdateAccount changes the email and or password. A taken email fails with
// the uniform credentials message.
func (s *CredentialService) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*Account, error) {
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		req.Email = &email
	}
	if err := validateUpdate(req, s.cfg.GetPasswordMinLength()); err != nil {
		return nil, err
	}

	var digest string
	if req.Password != nil {
		var err error
		if digest, err = s.hasher.Hash(*req.Password); err != nil {
			return nil, persistenceError(err)
		}
	}

	var account *Account
	err := retryOnce(ctx, func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			record, err := s.repo.Accounts().FindByIDTx(ctx, tx, id)
			if err != nil {
				return err
			}

			var columns []string
			if req.Email != nil && *req.Email != record.Email {
				taken, err := s.repo.Accounts().ExistsTx(ctx, tx, "", *req.Email, record.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateIdentity
				}
				record.Email = *req.Email
				columns = append(columns, "email")
			}
			if digest != "" {
				record.PasswordHash = digest
				columns = append(columns, "password_hash")
			}

			if len(columns) > 0 {
				record.UpdatedAt = s.now()
				if err := s.repo.Accounts().SaveTx(ctx, tx, record, columns...); err != nil {
					if isUniqueViolation(err) {
						return withCause(ErrDuplicateIdentity, err)
					}
					return err
				}
			}
			account = record
			return nil
		})
	})

	if err != nil {
		if isNotFound(err) {
			return nil, withCause(ErrAccountNotFound, err)
		}
		return nil, persistenceError(err)
	}

	s.logger.Info("account updated", "account_id", account.ID, "password_changed", digest != "")
	emit(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventAccountUpdated,
		AccountID: account.GetID(),
		Metadata:  map[string]any{"password_changed": digest != ""},
	})

	return account, nil
}

// DeactivateAccount clears the active flag and revokes every outstanding
// refresh token. The row is kept.
func (s *CredentialService) DeactivateAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var (
		account *Account
		revoked int
	)
	err := retryOnce(ctx, func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			record, err := s.repo.Accounts().FindByIDTx(ctx, tx, id)
			if err != nil {
				return err
			}

			if record.Active {
				record.Active = false
				record.UpdatedAt = s.now()
				if err := s.repo.Accounts().SaveTx(ctx, tx, record, "is_active"); err != nil {
					return err
				}
			}

			if revoked, err = s.repo.RefreshTokens().RevokeAllTx(ctx, tx, record.ID); err != nil {
				return err
			}
			account = record
			return nil
		})
	})

	if err != nil {
		if isNotFound(err) {
			return nil, withCause(ErrAccountNotFound, err)
		}
		return nil, persistenceError(err)
	}

	s.logger.Info("account deactivated", "account_id", account.ID, "revoked_tokens", revoked)
	emit(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventAccountDisabled,
		AccountID: account.GetID(),
		Metadata:  map[string]any{"revoked_tokens": revoked},
	})

	return account, nil
}
