package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pantryhub/go-auth/oidc"
	"github.com/uptrace/bun"
)

// ConnectionModel is the Bun model for provider connections.
type ConnectionModel struct {
	bun.BaseModel `bun:"table:oidc_connections,alias:conn"`

	ID          uuid.UUID  `bun:"id,pk,nullzero,type:uuid"`
	UserID      uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Provider    string     `bun:"provider,notnull"`
	Subject     string     `bun:"subject,notnull"`
	Email       string     `bun:"email"`
	Name        string     `bun:"name"`
	AvatarURL   string     `bun:"avatar_url"`
	LastLoginAt *time.Time `bun:"last_login_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,default:current_timestamp"`
}

// ConnectionRepository implements oidc.ConnectionRepository using Bun.
type ConnectionRepository struct {
	db *bun.DB
}

var _ oidc.ConnectionRepository = (*ConnectionRepository)(nil)

// NewConnectionRepository creates a new repository.
func NewConnectionRepository(db *bun.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// FindBySubject implements oidc.ConnectionRepository.
func (r *ConnectionRepository) FindBySubject(ctx context.Context, provider, subject string) (*oidc.Connection, error) {
	return r.FindBySubjectTx(ctx, r.db, provider, subject)
}

// FindBySubjectTx implements oidc.ConnectionRepository.
func (r *ConnectionRepository) FindBySubjectTx(ctx context.Context, tx bun.IDB, provider, subject string) (*oidc.Connection, error) {
	var model ConnectionModel
	err := tx.NewSelect().
		Model(&model).
		Where("provider = ? AND subject = ?", provider, subject).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return r.toConnection(&model), nil
}

// FindByUserID implements oidc.ConnectionRepository.
func (r *ConnectionRepository) FindByUserID(ctx context.Context, userID string) ([]*oidc.Connection, error) {
	var models []ConnectionModel
	err := r.db.NewSelect().
		Model(&models).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return []*oidc.Connection{}, nil
		}
		return nil, err
	}

	connections := make([]*oidc.Connection, len(models))
	for i, m := range models {
		connections[i] = r.toConnection(&m)
	}
	return connections, nil
}

// Upsert implements oidc.ConnectionRepository.
func (r *ConnectionRepository) Upsert(ctx context.Context, conn *oidc.Connection) error {
	return r.UpsertTx(ctx, r.db, conn)
}

// UpsertTx implements oidc.ConnectionRepository.
func (r *ConnectionRepository) UpsertTx(ctx context.Context, tx bun.IDB, conn *oidc.Connection) error {
	model := r.fromConnection(conn)
	model.UpdatedAt = time.Now()

	_, err := tx.NewInsert().
		Model(model).
		On("CONFLICT (provider, subject) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("last_login_at = EXCLUDED.last_login_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// Delete implements oidc.ConnectionRepository.
func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().
		Model((*ConnectionModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// DeleteByUserAndProvider implements oidc.ConnectionRepository.
func (r *ConnectionRepository) DeleteByUserAndProvider(ctx context.Context, userID, provider string) error {
	_, err := r.db.NewDelete().
		Model((*ConnectionModel)(nil)).
		Where("user_id = ? AND provider = ?", userID, provider).
		Exec(ctx)
	return err
}

// DeleteByUserTx implements oidc.ConnectionRepository. It runs in the
// caller's transaction so account deletion can take the connections with it.
func (r *ConnectionRepository) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID string) error {
	_, err := tx.NewDelete().
		Model((*ConnectionModel)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

// CountForUser implements oidc.ConnectionRepository.
func (r *ConnectionRepository) CountForUser(ctx context.Context, userID string) (int, error) {
	return r.db.NewSelect().
		Model((*ConnectionModel)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)
}

func (r *ConnectionRepository) toConnection(m *ConnectionModel) *oidc.Connection {
	return &oidc.Connection{
		ID:          m.ID.String(),
		UserID:      m.UserID.String(),
		Provider:    m.Provider,
		Subject:     m.Subject,
		Email:       m.Email,
		Name:        m.Name,
		AvatarURL:   m.AvatarURL,
		LastLoginAt: m.LastLoginAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (r *ConnectionRepository) fromConnection(c *oidc.Connection) *ConnectionModel {
	if c == nil {
		return &ConnectionModel{ID: uuid.New()}
	}

	var id uuid.UUID
	if c.ID != "" {
		if parsed, err := uuid.Parse(c.ID); err == nil {
			id = parsed
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	var userID uuid.UUID
	if c.UserID != "" {
		if parsed, err := uuid.Parse(c.UserID); err == nil {
			userID = parsed
		}
	}

	return &ConnectionModel{
		ID:          id,
		UserID:      userID,
		Provider:    c.Provider,
		Subject:     c.Subject,
		Email:       c.Email,
		Name:        c.Name,
		AvatarURL:   c.AvatarURL,
		LastLoginAt: c.LastLoginAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
