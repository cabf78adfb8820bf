package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

const sessionTokenBytes = 32

// SessionMetadata captures request attributes recorded alongside a session.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionManager owns the lifecycle of opaque interactive sessions.
type SessionManager struct {
	repo   RepositoryManager
	ttl    time.Duration
	logger Logger
	now    func() time.Time
}

type SessionOption func(*SessionManager)

func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithSessionLogger(logger Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewSessionManager(repo RepositoryManager, opts ...SessionOption) *SessionManager {
	manager := &SessionManager{
		repo:   repo,
		ttl:    DefaultSessionTTL,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// Create mints a fresh opaque token for the user. The token is returned once,
// through the session record, and never derivable again.
func (m *SessionManager) Create(ctx context.Context, userID uuid.UUID, meta SessionMetadata) (*Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate session token")
	}

	now := m.now()
	session := &Session{
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(m.ttl),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	session, err = m.repo.Sessions().Insert(ctx, session)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist session")
	}

	m.logger.Debug("session created for user %s, expires %s", userID, session.ExpiresAt)

	return session, nil
}

// Validate resolves a token to its user. Expired sessions are deleted on
// sight so the table self-cleans under normal traffic. A token whose user
// has been deactivated behaves exactly like an unknown token.
func (m *SessionManager) Validate(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, ErrSessionNotFound
	}

	session, err := m.repo.Sessions().FindByToken(ctx, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "session lookup failed")
	}

	now := m.now()
	if session.Expired(now) {
		if derr := m.repo.Sessions().DeleteByToken(ctx, token); derr != nil {
			m.logger.Warn("failed to delete expired session: %v", derr)
		}
		return nil, nil, ErrSessionExpired
	}

	user, err := m.repo.Users().GetByID(ctx, session.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "session user lookup failed")
	}

	if !user.IsActive {
		return nil, nil, ErrSessionNotFound
	}

	if err := m.repo.Sessions().TouchLastUsed(ctx, token, now); err != nil {
		m.logger.Warn("failed to touch session: %v", err)
	}

	return user, session, nil
}

// Revoke removes a session. Unknown tokens are a no-op, logout is idempotent.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.Sessions().DeleteByToken(ctx, token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session")
	}
	return nil
}

// RevokeAllForUser drops every session the user holds, across devices.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := m.repo.Sessions().DeleteByUserTx(ctx, m.repo.DB(), userID)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke user sessions")
	}
	return count, nil
}

// SweepExpired bulk-deletes rows past their deadline. Meant for a periodic
// job; Validate already removes the ones it trips over.
func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	count, err := m.repo.Sessions().DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sweep expired sessions")
	}
	if count > 0 {
		m.logger.Info("swept %d expired sessions", count)
	}
	return count, nil
}

func generateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
