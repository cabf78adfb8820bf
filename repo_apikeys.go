package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ApiKeys stores integration credentials by digest. There is no plaintext
// column, so validation is a single indexed lookup.
type ApiKeys interface {
	Insert(ctx context.Context, key *ApiKey) (*ApiKey, error)
	FindByDigest(ctx context.Context, digest string) (*ApiKey, error)
	FindByID(ctx context.Context, id uuid.UUID) (*ApiKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*ApiKey, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Rename(ctx context.Context, id uuid.UUID, name, description string) error
	Remove(ctx context.Context, id uuid.UUID) error
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type apiKeys struct {
	db *bun.DB
}

var _ ApiKeys = (*apiKeys)(nil)

func NewApiKeysRepository(db *bun.DB) ApiKeys {
	return &apiKeys{db: db}
}

func (r *apiKeys) Insert(ctx context.Context, key *ApiKey) (*ApiKey, error) {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if _, err := r.db.NewInsert().Model(key).Exec(ctx); err != nil {
		return nil, err
	}
	return key, nil
}

func (r *apiKeys) FindByDigest(ctx context.Context, digest string) (*ApiKey, error) {
	record := &ApiKey{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.key_hash = ?", digest).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *apiKeys) FindByID(ctx context.Context, id uuid.UUID) (*ApiKey, error) {
	record := &ApiKey{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *apiKeys) ListByUser(ctx context.Context, userID uuid.UUID) ([]*ApiKey, error) {
	var records []*ApiKey
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *apiKeys) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*ApiKey)(nil)).
		Set("is_active = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *apiKeys) Rename(ctx context.Context, id uuid.UUID, name, description string) error {
	q := r.db.NewUpdate().
		Model((*ApiKey)(nil)).
		Where("id = ?", id)

	if name != "" {
		q = q.Set("name = ?", name)
	}
	if description != "" {
		q = q.Set("description = ?", description)
	}

	_, err := q.Exec(ctx)
	return err
}

func (r *apiKeys) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*ApiKey)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *apiKeys) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*ApiKey)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TouchLastUsed is best effort; losing a race here only skews a timestamp.
func (r *apiKeys) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*ApiKey)(nil)).
		Set("last_used_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
