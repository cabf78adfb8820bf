package auth

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// RepositoryManager aggregates the persistence surface so callers can run
// multi-table operations in a single transaction.
type RepositoryManager interface {
	Users() Users
	Sessions() Sessions
	ApiKeys() ApiKeys
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
	DB() *bun.DB
}

type repositoryManager struct {
	db       *bun.DB
	users    Users
	sessions Sessions
	apiKeys  ApiKeys
}

var _ RepositoryManager = (*repositoryManager)(nil)

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &repositoryManager{
		db:       db,
		users:    NewUsersRepository(db),
		sessions: NewSessionsRepository(db),
		apiKeys:  NewApiKeysRepository(db),
	}
}

func (m *repositoryManager) Users() Users {
	return m.users
}

func (m *repositoryManager) Sessions() Sessions {
	return m.sessions
}

func (m *repositoryManager) ApiKeys() ApiKeys {
	return m.apiKeys
}

func (m *repositoryManager) DB() *bun.DB {
	return m.db
}

func (m *repositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	if opts == nil {
		opts = &sql.TxOptions{}
	}
	return m.db.RunInTx(ctx, opts, fn)
}
