package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Authenticator ties credential verification to session issuance. It is the
// entry point for interactive password login.
type Authenticator struct {
	provider IdentityProvider
	sessions *SessionManager
	logger   Logger
}

type AuthenticatorOption func(*Authenticator)

func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAuthenticator(provider IdentityProvider, sessions *SessionManager, opts ...AuthenticatorOption) *Authenticator {
	authenticator := &Authenticator{
		provider: provider,
		sessions: sessions,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		opt(authenticator)
	}

	return authenticator
}

// Login verifies credentials and opens a session.
func (a *Authenticator) Login(ctx context.Context, identifier, password string, meta SessionMetadata) (*Session, Identity, error) {
	identity, err := a.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		return nil, nil, err
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "malformed identity id")
	}

	session, err := a.sessions.Create(ctx, userID, meta)
	if err != nil {
		return nil, nil, err
	}

	a.logger.Info("user %s logged in", identity.ID())

	return session, identity, nil
}

// Logout revokes the session. Unknown tokens succeed; logout is idempotent.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	return a.sessions.Revoke(ctx, token)
}
