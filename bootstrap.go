package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	// DefaultAdminUsername names the account seeded on an empty install.
	DefaultAdminUsername = "admin"
	// DefaultAdminPassword must be rotated on first login.
	DefaultAdminPassword = "admin"
)

// EnsureDefaultAdmin creates the seed administrator when no users exist, so
// a fresh install is never locked out. It reports whether a user was created
// and is safe to call on every start.
func EnsureDefaultAdmin(ctx context.Context, repo RepositoryManager, logger Logger) (*User, bool, error) {
	if logger == nil {
		logger = defLogger{}
	}

	var user *User
	created := false

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		count, err := repo.Users().CountAllTx(ctx, tx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "user count failed")
		}
		if count > 0 {
			return nil
		}

		hash, err := HashPassword(DefaultAdminPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash seed password")
		}

		user, err = repo.Users().RegisterTx(ctx, tx, &User{
			Username:      DefaultAdminUsername,
			FullName:      "Administrator",
			PasswordHash:  hash,
			IsAdmin:       true,
			IsActive:      true,
			EmailVerified: true,
			SecretVersion: 1,
		})
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed administrator")
		}

		created = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, false, richErr
		}
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "administrator bootstrap failed")
	}

	if created {
		logger.Warn("seeded default administrator %q; change its password immediately", DefaultAdminUsername)
	}

	return user, created, nil
}
