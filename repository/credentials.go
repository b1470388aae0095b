package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RenewalCredentialModel is the Bun model for the persisted renewal
// credential. One row per cookie name.
type RenewalCredentialModel struct {
	bun.BaseModel `bun:"table:renewal_credentials,alias:rcr"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name      string    `bun:"name,notnull,unique" json:"name"`
	Value     string    `bun:"value,notnull" json:"-"`
	Path      string    `bun:"path,notnull" json:"path"`
	SameSite  string    `bun:"same_site,notnull" json:"same_site"`
	Secure    bool      `bun:"secure,notnull" json:"secure"`
	HTTPOnly  bool      `bun:"http_only,notnull" json:"http_only"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func newCredentialsRepository(db *bun.DB) repository.Repository[*RenewalCredentialModel] {
	return repository.NewRepository(db, repository.ModelHandlers[*RenewalCredentialModel]{
		NewRecord: func() *RenewalCredentialModel {
			return &RenewalCredentialModel{}
		},
		GetID: func(record *RenewalCredentialModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *RenewalCredentialModel, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})
}

// CredentialRepository implements auth.CredentialStore using Bun. The
// cookie attributes are stored next to the value so an operator can audit
// what the session persisted.
type CredentialRepository struct {
	repository.Repository[*RenewalCredentialModel]
	db     *bun.DB
	cookie auth.RenewalCookie
	now    func() time.Time
}

// NewCredentialRepository creates a new repository for cookie.
func NewCredentialRepository(db *bun.DB, cookie auth.RenewalCookie) *CredentialRepository {
	if cookie.Name == "" {
		cookie = auth.DefaultRenewalCookie()
	}
	return &CredentialRepository{
		Repository: newCredentialsRepository(db),
		db:         db,
		cookie:     cookie,
		now:        time.Now,
	}
}

// WithClock overrides the time source used for expiry checks.
func (r *CredentialRepository) WithClock(now func() time.Time) *CredentialRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Migrate creates the backing table when missing.
func (r *CredentialRepository) Migrate(ctx context.Context) error {
	return r.MigrateTx(ctx, r.db)
}

func (r *CredentialRepository) MigrateTx(ctx context.Context, tx bun.IDB) error {
	_, err := tx.NewCreateTable().
		Model((*RenewalCredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Get implements auth.CredentialStore. Expired rows read as absent.
func (r *CredentialRepository) Get(ctx context.Context) (string, bool, error) {
	record, err := r.Repository.GetByIdentifierTx(ctx, r.db, r.cookie.Name)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	if record.Value == "" || !r.now().Before(record.ExpiresAt) {
		return "", false, nil
	}
	return record.Value, true, nil
}

// Set implements auth.CredentialStore. Setting "" clears the credential.
func (r *CredentialRepository) Set(ctx context.Context, value string) error {
	if value == "" {
		return r.Clear(ctx)
	}
	_, err := r.UpsertTx(ctx, r.db, value)
	return err
}

// UpsertTx writes value under the cookie name, keeping the row id when one
// already exists.
func (r *CredentialRepository) UpsertTx(ctx context.Context, tx bun.IDB, value string) (*RenewalCredentialModel, error) {
	now := r.now().UTC()
	record := &RenewalCredentialModel{
		Name:      r.cookie.Name,
		Value:     value,
		Path:      r.cookie.Path,
		SameSite:  r.cookie.SameSite,
		Secure:    r.cookie.Secure,
		HTTPOnly:  r.cookie.HTTPOnly,
		ExpiresAt: r.cookie.ExpiresAt(now),
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := r.Repository.GetByIdentifierTx(ctx, tx, r.cookie.Name)
	if err == nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		return r.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(existing.ID.String()))
	}

	if !repository.IsRecordNotFound(err) && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	record.ID = uuid.New()
	return r.Repository.CreateTx(ctx, tx, record)
}

// Clear implements auth.CredentialStore.
func (r *CredentialRepository) Clear(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*RenewalCredentialModel)(nil)).
		Where("name = ?", r.cookie.Name).
		Exec(ctx)
	return err
}

// Purge deletes every expired row and returns how many went away.
func (r *CredentialRepository) Purge(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RenewalCredentialModel)(nil)).
		Where("expires_at <= ?", r.now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ auth.CredentialStore = (*CredentialRepository)(nil)
