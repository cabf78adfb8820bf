package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions stores opaque bearer tokens. Lookups are by the unique token
// column; expiry is enforced by the SessionManager, not here.
type Sessions interface {
	Insert(ctx context.Context, session *Session) (*Session, error)
	InsertTx(ctx context.Context, tx bun.IDB, session *Session) (*Session, error)
	FindByToken(ctx context.Context, token string) (*Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	TouchLastUsed(ctx context.Context, token string, at time.Time) error
}

type sessions struct {
	db *bun.DB
}

var _ Sessions = (*sessions)(nil)

func NewSessionsRepository(db *bun.DB) Sessions {
	return &sessions{db: db}
}

func (r *sessions) Insert(ctx context.Context, session *Session) (*Session, error) {
	return r.InsertTx(ctx, r.db, session)
}

func (r *sessions) InsertTx(ctx context.Context, tx bun.IDB, session *Session) (*Session, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if _, err := tx.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessions) FindByToken(ctx context.Context, token string) (*Session, error) {
	record := &Session{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *sessions) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.NewDelete().
		Model((*Session)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	return err
}

func (r *sessions) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*Session)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TouchLastUsed is best effort; concurrent writers race as last-writer-wins.
func (r *sessions) TouchLastUsed(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*Session)(nil)).
		Set("last_used_at = ?", at).
		Where("token = ?", token).
		Exec(ctx)
	return err
}
