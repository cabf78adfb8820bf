package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Guard enforces administrative invariants: only admins manage accounts, no
// actor edits their own admin flag, and the system never drops to zero
// administrators.
type Guard struct {
	repo     RepositoryManager
	logger   Logger
	cascades []CascadeFunc
}

// CascadeFunc removes rows a user owns outside this package. Registered
// cascades run inside the deletion transaction, so a failing cascade aborts
// the whole delete.
type CascadeFunc func(ctx context.Context, tx bun.IDB, userID uuid.UUID) error

type GuardOption func(*Guard)

func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithGuardCascade(fn CascadeFunc) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.cascades = append(g.cascades, fn)
		}
	}
}

func NewGuard(repo RepositoryManager, opts ...GuardOption) *Guard {
	guard := &Guard{
		repo:   repo,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(guard)
	}

	return guard
}

// RequireAdmin rejects non-admin actors.
func RequireAdmin(actor Identity) error {
	if actor == nil || !actor.IsAdmin() {
		return ErrPermissionDenied
	}
	return nil
}

// EvaluateAdminChange is the pure decision for an admin-flag mutation. It
// covers everything decidable without storage; the last-admin check happens
// atomically in the statement that applies the demotion.
func EvaluateAdminChange(actor Identity, targetID uuid.UUID) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	if actor.ID() == targetID.String() {
		return ErrSelfModificationDenied
	}
	return nil
}

// SetAdminFlag grants or revokes administrator status. Demotions run through
// a guarded statement so concurrent demotions cannot remove the last admin.
func (g *Guard) SetAdminFlag(ctx context.Context, actor Identity, targetID uuid.UUID, makeAdmin bool) error {
	if err := EvaluateAdminChange(actor, targetID); err != nil {
		return err
	}

	return g.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		target, err := g.repo.Users().GetByIDTx(ctx, tx, targetID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "target lookup failed")
		}

		if target.IsAdmin == makeAdmin {
			return nil
		}

		if makeAdmin {
			if err := g.repo.Users().PromoteAdminTx(ctx, tx, targetID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to promote user")
			}
			g.logger.Info("user %s promoted to admin by %s", targetID, actor.ID())
			return nil
		}

		matched, err := g.repo.Users().DemoteAdminTx(ctx, tx, targetID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to demote user")
		}
		if !matched {
			return ErrLastAdminProtected
		}

		g.logger.Info("user %s demoted from admin by %s", targetID, actor.ID())
		return nil
	})
}

// SetActiveFlag enables or disables an account. Deactivation revokes every
// session so the change takes effect immediately, and a deactivated admin
// still counts against the last-admin guard through demotion first.
func (g *Guard) SetActiveFlag(ctx context.Context, actor Identity, targetID uuid.UUID, active bool) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	if !active && actor.ID() == targetID.String() {
		return ErrSelfModificationDenied
	}

	return g.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		target, err := g.repo.Users().GetByIDTx(ctx, tx, targetID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "target lookup failed")
		}

		if !active && target.IsAdmin {
			matched, err := g.repo.Users().DemoteAdminTx(ctx, tx, targetID)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to demote user")
			}
			if !matched {
				return ErrLastAdminProtected
			}
		}

		if err := g.repo.Users().SetActiveFlagTx(ctx, tx, targetID, active); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update active flag")
		}

		if !active {
			if _, err := g.repo.Sessions().DeleteByUserTx(ctx, tx, targetID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke sessions")
			}
		}

		g.logger.Info("user %s active=%t set by %s", targetID, active, actor.ID())
		return nil
	})
}

// DeleteUser removes an account and its credentials in one transaction. An
// admin target is demoted through the guarded statement first, so deleting
// the last administrator fails instead of emptying the admin set.
func (g *Guard) DeleteUser(ctx context.Context, actor Identity, targetID uuid.UUID) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	if actor.ID() == targetID.String() {
		return ErrSelfModificationDenied
	}

	return g.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		target, err := g.repo.Users().GetByIDTx(ctx, tx, targetID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "target lookup failed")
		}

		if target.IsAdmin {
			matched, err := g.repo.Users().DemoteAdminTx(ctx, tx, targetID)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to demote user")
			}
			if !matched {
				return ErrLastAdminProtected
			}
		}

		if _, err := g.repo.Sessions().DeleteByUserTx(ctx, tx, targetID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete sessions")
		}
		if _, err := g.repo.ApiKeys().DeleteByUserTx(ctx, tx, targetID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete api keys")
		}
		for _, cascade := range g.cascades {
			if err := cascade(ctx, tx, targetID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "user delete cascade failed")
			}
		}
		if err := g.repo.Users().RemoveTx(ctx, tx, targetID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
		}

		g.logger.Info("user %s deleted by %s", targetID, actor.ID())
		return nil
	})
}
