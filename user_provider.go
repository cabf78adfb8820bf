package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type authIdentity struct {
	id       string
	username string
	email    string
	isAdmin  bool
}

func (a authIdentity) ID() string       { return a.id }
func (a authIdentity) Username() string { return a.username }
func (a authIdentity) Email() string    { return a.email }
func (a authIdentity) IsAdmin() bool    { return a.isAdmin }

// NewIdentityFromUser adapts a stored user to the Identity view handed to
// transport layers.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return authIdentity{
		id:       user.ID.String(),
		username: user.Username,
		email:    user.Email,
		isAdmin:  user.IsAdmin,
	}
}

type userProvider struct {
	repo   RepositoryManager
	logger Logger
}

var _ IdentityProvider = (*userProvider)(nil)

type UserProviderOption func(*userProvider)

func WithProviderLogger(logger Logger) UserProviderOption {
	return func(p *userProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewUserProvider(repo RepositoryManager, opts ...UserProviderOption) IdentityProvider {
	provider := &userProvider{
		repo:   repo,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(provider)
	}

	return provider
}

// VerifyIdentity checks a password login. Unknown identifier, deactivated
// account, and wrong password all collapse to ErrInvalidCredentials.
func (p *userProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := p.repo.Users().GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			p.logger.Debug("login failed, unknown identifier")
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity lookup failed")
	}

	if !user.IsActive {
		p.logger.Debug("login failed, deactivated account %s", user.ID)
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		p.logger.Debug("login failed, password mismatch for %s", user.ID)
		return nil, ErrInvalidCredentials
	}

	if err := p.repo.Users().TrackSuccessfulLogin(ctx, user); err != nil {
		p.logger.Warn("failed to track login for %s: %v", user.ID, err)
	}

	return NewIdentityFromUser(user), nil
}

func (p *userProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := p.repo.Users().GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("identity not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity lookup failed")
	}

	return NewIdentityFromUser(user), nil
}
