package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type mngr struct {
	db          *bun.DB
	credentials *CredentialRepository
}

// Manager groups the repositories backing the dashboard session.
type Manager interface {
	repository.Validator
	repository.TransactionManager
	Migrate(ctx context.Context) error
	Credentials() *CredentialRepository
}

func NewRepositoryManager(db *bun.DB, cookie auth.RenewalCookie) Manager {
	return &mngr{
		db:          db,
		credentials: NewCredentialRepository(db, cookie),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) Migrate(ctx context.Context) error {
	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.credentials.MigrateTx(ctx, tx)
	})
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Credentials() *CredentialRepository {
	return m.credentials
}
