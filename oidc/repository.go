package oidc

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Connection links a local account to one external identity. A user may hold
// one connection per provider; a provider subject maps to at most one user.
type Connection struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Provider    string     `json:"provider"`
	Subject     string     `json:"subject"`
	Email       string     `json:"email,omitempty"`
	Name        string     `json:"name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ConnectionRepository manages connection persistence. Tx variants exist so
// the resolver can link accounts and create users atomically.
type ConnectionRepository interface {
	FindBySubject(ctx context.Context, provider, subject string) (*Connection, error)
	FindBySubjectTx(ctx context.Context, tx bun.IDB, provider, subject string) (*Connection, error)
	FindByUserID(ctx context.Context, userID string) ([]*Connection, error)
	Upsert(ctx context.Context, conn *Connection) error
	UpsertTx(ctx context.Context, tx bun.IDB, conn *Connection) error
	Delete(ctx context.Context, id string) error
	DeleteByUserAndProvider(ctx context.Context, userID, provider string) error
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID string) error
	CountForUser(ctx context.Context, userID string) (int, error)
}
