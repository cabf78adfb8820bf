package oidc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	auth "github.com/pantryhub/go-auth"
	"github.com/uptrace/bun"
)

// Policy controls how external identities map onto local accounts.
type Policy struct {
	// AutoLink attaches a connection to an existing account whose email
	// matches the external profile.
	AutoLink bool
	// AutoCreate provisions a new account when nothing matches.
	AutoCreate bool
	// RequireVerifiedEmail refuses to link or create from unverified
	// provider emails.
	RequireVerifiedEmail bool
}

// Resolution is the outcome of mapping a profile to an account.
type Resolution struct {
	User      *auth.User
	IsNewUser bool
	Linked    bool
}

// Resolver maps verified external profiles to local accounts. Every path
// runs in one transaction, so a failure mid-resolution leaves no partial
// connection or half-created user behind.
type Resolver struct {
	repo        auth.RepositoryManager
	connections ConnectionRepository
	policy      Policy
	logger      auth.Logger
}

type ResolverOption func(*Resolver)

func WithResolverLogger(logger auth.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewResolver(repo auth.RepositoryManager, connections ConnectionRepository, policy Policy, opts ...ResolverOption) *Resolver {
	resolver := &Resolver{
		repo:        repo,
		connections: connections,
		policy:      policy,
		logger:      auth.DefaultLogger(),
	}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

// Resolve walks the decision tree: existing connection, email match under
// AutoLink, fresh account under AutoCreate, otherwise denied.
func (r *Resolver) Resolve(ctx context.Context, profile *Profile) (*Resolution, error) {
	if profile == nil || profile.Subject == "" {
		return nil, ErrInvalidIDToken
	}

	result := &Resolution{}

	err := r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		conn, err := r.connections.FindBySubjectTx(ctx, tx, profile.Provider, profile.Subject)
		if err != nil && !isNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "connection lookup failed")
		}

		if conn != nil {
			return r.resolveExisting(ctx, tx, conn, profile, result)
		}

		if profile.Email != "" {
			user, err := r.repo.Users().FindByEmailTx(ctx, tx, profile.Email)
			if err != nil && !isNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
			}
			if user != nil {
				return r.resolveByEmail(ctx, tx, user, profile, result)
			}
		}

		return r.resolveNew(ctx, tx, profile, result)
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Resolver) resolveExisting(ctx context.Context, tx bun.IDB, conn *Connection, profile *Profile, result *Resolution) error {
	user, err := r.repo.Users().GetByIDTx(ctx, tx, conn.UserID)
	if err != nil {
		if isNotFound(err) {
			// Orphaned connection; the row points at a deleted account.
			return ErrAuthenticationDenied
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "linked user lookup failed")
	}

	if !user.IsActive {
		return ErrAuthenticationDenied
	}

	if err := r.touchConnection(ctx, tx, conn, profile); err != nil {
		return err
	}

	result.User = user
	return nil
}

func (r *Resolver) resolveByEmail(ctx context.Context, tx bun.IDB, user *auth.User, profile *Profile, result *Resolution) error {
	if !r.policy.AutoLink {
		r.logger.Debug("auto-link disabled, refusing %s subject for %s", profile.Provider, user.ID)
		return ErrAuthenticationDenied
	}

	if r.policy.RequireVerifiedEmail && !profile.EmailVerified {
		return ErrAuthenticationDenied
	}

	if !user.IsActive {
		return ErrAuthenticationDenied
	}

	if err := r.upsertConnection(ctx, tx, user, profile); err != nil {
		return err
	}

	r.logger.Info("linked %s identity to user %s", profile.Provider, user.ID)

	result.User = user
	result.Linked = true
	return nil
}

func (r *Resolver) resolveNew(ctx context.Context, tx bun.IDB, profile *Profile, result *Resolution) error {
	if !r.policy.AutoCreate {
		return ErrAuthenticationDenied
	}

	if profile.Email == "" {
		return ErrAuthenticationDenied
	}

	if r.policy.RequireVerifiedEmail && !profile.EmailVerified {
		return ErrAuthenticationDenied
	}

	// The account has no usable password until the owner runs a reset; the
	// placeholder hash only blocks password login.
	hash := auth.RandomPasswordHash()

	username, err := r.uniqueUsername(ctx, tx, profile)
	if err != nil {
		return err
	}

	user := &auth.User{
		Username:      username,
		Email:         profile.Email,
		FullName:      profile.Name,
		PasswordHash:  hash,
		IsActive:      true,
		EmailVerified: profile.EmailVerified,
		SecretVersion: 1,
	}

	if user, err = r.repo.Users().RegisterTx(ctx, tx, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}

	if err := r.upsertConnection(ctx, tx, user, profile); err != nil {
		return err
	}

	r.logger.Info("provisioned user %s from %s identity", user.ID, profile.Provider)

	result.User = user
	result.IsNewUser = true
	return nil
}

func (r *Resolver) upsertConnection(ctx context.Context, tx bun.IDB, user *auth.User, profile *Profile) error {
	now := time.Now()
	conn := &Connection{
		UserID:      user.ID.String(),
		Provider:    profile.Provider,
		Subject:     profile.Subject,
		Email:       profile.Email,
		Name:        profile.Name,
		AvatarURL:   profile.AvatarURL,
		LastLoginAt: &now,
	}

	if err := r.connections.UpsertTx(ctx, tx, conn); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save connection")
	}
	return nil
}

func (r *Resolver) touchConnection(ctx context.Context, tx bun.IDB, conn *Connection, profile *Profile) error {
	now := time.Now()
	conn.Email = profile.Email
	conn.Name = profile.Name
	conn.AvatarURL = profile.AvatarURL
	conn.LastLoginAt = &now

	if err := r.connections.UpsertTx(ctx, tx, conn); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update connection")
	}
	return nil
}

// uniqueUsername derives a username from the profile and suffixes it until
// it is free.
func (r *Resolver) uniqueUsername(ctx context.Context, tx bun.IDB, profile *Profile) (string, error) {
	base := profile.Username
	if base == "" {
		base = fmt.Sprintf("%s_%s", profile.Provider, profile.Subject)
	}

	candidate := base
	for i := 2; ; i++ {
		taken, err := r.repo.Users().IdentifierTakenTx(ctx, tx, candidate, "")
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "username check failed")
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

// Unlink removes a provider connection. The only connection of an account
// whose email is unverified stays, that account could not finish a password
// reset and would be locked out.
func (r *Resolver) Unlink(ctx context.Context, user *auth.User, provider string) error {
	count, err := r.connections.CountForUser(ctx, user.ID.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "connection count failed")
	}

	if count <= 1 && !user.EmailVerified {
		return ErrLastLoginMethod
	}

	if err := r.connections.DeleteByUserAndProvider(ctx, user.ID.String(), provider); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete connection")
	}

	return nil
}

func isNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || err == sql.ErrNoRows
}
