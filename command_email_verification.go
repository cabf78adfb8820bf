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

// RequestEmailVerificationMessage re-sends a verification link.
type RequestEmailVerificationMessage struct {
	Email string `json:"email"`
}

func (e RequestEmailVerificationMessage) Type() string { return "user.email_verification.request" }

func (e RequestEmailVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type RequestEmailVerificationHandler struct {
	repo   RepositoryManager
	signer *TokenSigner
	mailer Mailer
	logger Logger
}

func NewRequestEmailVerificationHandler(repo RepositoryManager, signer *TokenSigner, mailer Mailer, logger Logger) *RequestEmailVerificationHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &RequestEmailVerificationHandler{
		repo:   repo,
		signer: signer,
		mailer: mailer,
		logger: logger,
	}
}

// Execute mirrors the reset flow's enumeration stance: unknown and
// already-verified addresses succeed silently.
func (h *RequestEmailVerificationHandler) Execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailVerificationHandler) execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().FindByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.logger.Debug("verification requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
	}

	if user.EmailVerified || !user.IsActive {
		return nil
	}

	token, err := h.signer.SignEmailVerification(user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign verification token")
	}

	if err := h.mailer.SendEmailVerification(ctx, user.Email, token); err != nil {
		h.logger.Warn("failed to send verification email to %s: %v", user.Email, err)
	}

	return nil
}

// ConfirmEmailVerificationMessage completes the flow with a signed token.
type ConfirmEmailVerificationMessage struct {
	Token string `json:"token"`
}

func (e ConfirmEmailVerificationMessage) Type() string { return "user.email_verification.confirm" }

func (e ConfirmEmailVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
	)
}

type ConfirmEmailVerificationHandler struct {
	repo   RepositoryManager
	signer *TokenSigner
	logger Logger
}

func NewConfirmEmailVerificationHandler(repo RepositoryManager, signer *TokenSigner, logger Logger) *ConfirmEmailVerificationHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &ConfirmEmailVerificationHandler{
		repo:   repo,
		signer: signer,
		logger: logger,
	}
}

func (h *ConfirmEmailVerificationHandler) Execute(ctx context.Context, event ConfirmEmailVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification confirm",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailVerificationHandler) execute(ctx context.Context, event ConfirmEmailVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification payload")
	}

	claims, err := h.signer.Verify(event.Token, PurposeEmailVerify)
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

		if claims.SecretVersion != user.SecretVersion {
			return ErrTokenExpired
		}

		if user.EmailVerified {
			return goerrors.New("email already verified", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict)
		}

		if err := h.repo.Users().MarkEmailVerifiedTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification transaction failed")
	}

	h.logger.Info("email verified for user %s", claims.Subject)

	return nil
}
