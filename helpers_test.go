package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-credauth"
)

const (
	testSigningKey = "test-signing-key-0123456789abcdef"
	testPassword   = "correct-horse-battery"
)

var testEpoch = time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *eventRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ByType(t auth.ActivityEventType) []auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []auth.ActivityEvent
	for _, e := range r.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctx         context.Context
	db          *bun.DB
	repo        auth.RepositoryManager
	clock       *testClock
	opts        auth.Options
	events      *eventRecorder
	credentials *auth.CredentialService
	tokens      *auth.TokenService
	access      *auth.AccessTokenService
	auther      *auth.Auther
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.CreateSchema(context.Background(), db))
	return db
}

func newFixture(t *testing.T, mutate ...func(*auth.Options)) *fixture {
	t.Helper()

	opts := auth.DefaultOptions()
	opts.SigningKey = testSigningKey
	opts.Issuer = "credauth-test"
	for _, m := range mutate {
		m(&opts)
	}

	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()

	clock := newTestClock()
	events := &eventRecorder{}
	logger := auth.NewZapLogger(zaptest.NewLogger(t))

	credentials := auth.NewCredentialService(repo, opts,
		auth.WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		auth.WithCredentialClock(clock.Now),
		auth.WithCredentialLogger(logger),
		auth.WithCredentialActivitySink(events),
	)

	tokens := auth.NewTokenService(repo, opts,
		auth.WithTokenClock(clock.Now),
		auth.WithTokenLogger(logger),
		auth.WithTokenActivitySink(events),
	)

	access, err := auth.NewAccessTokenService(opts,
		auth.WithAccessTokenClock(clock.Now),
		auth.WithAccessTokenLogger(logger),
	)
	require.NoError(t, err)

	return &fixture{
		ctx:         context.Background(),
		db:          db,
		repo:        repo,
		clock:       clock,
		opts:        opts,
		events:      events,
		credentials: credentials,
		tokens:      tokens,
		access:      access,
		auther:      auth.NewAuthenticator(credentials, tokens, access).WithLogger(logger),
	}
}

func (f *fixture) register(t *testing.T, username, email string) *auth.Account {
	t.Helper()
	account, err := f.credentials.Register(f.ctx, auth.RegisterRequest{
		Username: username,
		Email:    email,
		Password: testPassword,
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) login(identifier, password string) (*auth.Account, bool, error) {
	return f.credentials.Login(f.ctx, auth.LoginRequest{
		Identifier:    identifier,
		Password:      password,
		OriginAddress: "203.0.113.7",
		UserAgent:     "go-test",
	})
}

func (f *fixture) lockout(t *testing.T, account *auth.Account) *auth.Lockout {
	t.Helper()
	state, err := f.credentials.Lockout().State(f.ctx, f.db, account.ID)
	require.NoError(t, err)
	return state
}

func (f *fixture) attempts(t *testing.T, identifier string) int {
	t.Helper()
	n, err := f.repo.LoginAttempts().CountTx(f.ctx, f.db, identifier)
	require.NoError(t, err)
	return n
}

var testUnknownID = uuid.MustParse("00000000-0000-4000-8000-000000000042")

// assertCode checks err against a sentinel by text code, since returned
// errors are copies of the sentinel carrying their own cause.
func assertCode(t *testing.T, err error, want *goerrors.Error, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	return assert.Equal(t, want.TextCode, auth.TextCodeOf(err), msgAndArgs...)
}

func requireCode(t *testing.T, err error, want *goerrors.Error, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	require.Equal(t, want.TextCode, auth.TextCodeOf(err), msgAndArgs...)
}

// publicMessage is the message a client would see for err.
func publicMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return ""
}
