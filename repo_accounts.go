package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the credential store.
type Accounts interface {
	repository.Repository[*Account]

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	ExistsTx(ctx context.Context, tx bun.IDB, username, email string, exclude uuid.UUID) (bool, error)
	PageTx(ctx context.Context, tx bun.IDB, offset, limit int) ([]*Account, int, error)

	SaveTx(ctx context.Context, tx bun.IDB, account *Account, columns ...string) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	return a.CreateTx(ctx, tx, account)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// FindByIdentifierTx resolves identifier against the username or the email.
// Usernames match exactly, emails match in their stored lowercase form. An
// exact username match wins over an email match.
func (a *accounts) FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, a.notFound("identifier", identifier)
	}

	var records []*Account
	err := tx.NewSelect().
		Model(&records).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.username = ?", identifier).
				WhereOr("?TableAlias.email = ?", normalizeEmail(identifier))
		}).
		Limit(2).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	switch len(records) {
	case 0:
		return nil, a.notFound("identifier", identifier)
	case 1:
		return records[0], nil
	}

	for _, r := range records {
		if r.Username == identifier {
			return r, nil
		}
	}
	return records[0], nil
}

func (a *accounts) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, a.notFound("id", id.String())
		}
		return nil, err
	}
	return record, nil
}

// ExistsTx reports whether another account already holds username or email.
// Empty values are ignored, exclude skips the caller's own row.
func (a *accounts) ExistsTx(ctx context.Context, tx bun.IDB, username, email string, exclude uuid.UUID) (bool, error) {
	if username == "" && email == "" {
		return false, nil
	}

	q := tx.NewSelect().
		Model((*Account)(nil)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if username != "" {
				q = q.WhereOr("?TableAlias.username = ?", username)
			}
			if email != "" {
				q = q.WhereOr("?TableAlias.email = ?", email)
			}
			return q
		})

	if exclude != uuid.Nil {
		q = q.Where("?TableAlias.id <> ?", exclude)
	}

	return q.Exists(ctx)
}

func (a *accounts) PageTx(ctx context.Context, tx bun.IDB, offset, limit int) ([]*Account, int, error) {
	var records []*Account
	total, err := tx.NewSelect().
		Model(&records).
		Order("created_at ASC", "username ASC").
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)
	if err != nil && !isNotFound(err) {
		return nil, 0, err
	}
	return records, total, nil
}

// SaveTx writes the given columns of account by primary key. updated_at is
// always written.
func (a *accounts) SaveTx(ctx context.Context, tx bun.IDB, account *Account, columns ...string) error {
	columns = append(columns, "updated_at")
	res, err := tx.NewUpdate().
		Model(account).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return a.notFound("id", account.ID.String())
	}
	return nil
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("last_login_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *accounts) notFound(key, value string) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			key: value,
		})
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := utcNow()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
}
