package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// InitializePasswordResetMessage starts the forgot-password flow.
type InitializePasswordResetMessage struct {
	Email string `json:"email"`
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset.initialize" }

func (e InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type InitializePasswordResetHandler struct {
	repo   RepositoryManager
	signer *TokenSigner
	mailer Mailer
	logger Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, signer *TokenSigner, mailer Mailer, logger Logger) *InitializePasswordResetHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &InitializePasswordResetHandler{
		repo:   repo,
		signer: signer,
		mailer: mailer,
		logger: logger,
	}
}

// Execute always reports success to the caller. Whether the address exists,
// is deactivated, or gets a link, the external answer is identical so the
// endpoint cannot be used to enumerate accounts.
func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().FindByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
	}

	if !user.IsActive {
		h.logger.Debug("password reset requested for deactivated user %s", user.ID)
		return nil
	}

	token, err := h.signer.SignPasswordReset(user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign reset token")
	}

	if err := h.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		h.logger.Warn("failed to send reset email to %s: %v", user.Email, err)
	}

	return nil
}

// FinalizePasswordResetMessage completes the flow with a signed token.
type FinalizePasswordResetMessage struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

func (e FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.NewPassword, validation.Required, validation.Length(8, 100)),
	)
}

type FinalizePasswordResetHandler struct {
	repo   RepositoryManager
	signer *TokenSigner
	logger Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, signer *TokenSigner, logger Logger) *FinalizePasswordResetHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &FinalizePasswordResetHandler{
		repo:   repo,
		signer: signer,
		logger: logger,
	}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid reset payload")
	}

	claims, err := h.signer.Verify(event.Token, PurposePasswordReset)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIDTx(ctx, tx, claims.Subject.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrTamperedToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
		}

		// The stored version moves on every password change, so a replayed
		// token no longer matches and the link behaves like an expired one.
		if claims.SecretVersion != user.SecretVersion {
			return ErrTokenExpired
		}

		if !user.IsActive {
			return ErrTamperedToken
		}

		hash, err := HashPassword(event.NewPassword)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if err := h.repo.Users().ResetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store new password")
		}

		if _, err := h.repo.Sessions().DeleteByUserTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke sessions")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	h.logger.Info("password reset completed for user %s", claims.Subject)

	return nil
}
