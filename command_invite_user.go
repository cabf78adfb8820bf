package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// InviteUserMessage creates an account on someone's behalf. The invitee gets
// an unguessable placeholder hash and a reset link; they never receive a
// plaintext password.
type InviteUserMessage struct {
	Actor    Identity `json:"-"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Phone    string   `json:"phone"`
	IsAdmin  bool     `json:"is_admin"`
}

func (e InviteUserMessage) Type() string { return "user.invite" }

func (e InviteUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required, validation.Length(3, 100)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
	)
}

type InviteUserHandler struct {
	repo   RepositoryManager
	signer *TokenSigner
	mailer Mailer
	logger Logger
}

func NewInviteUserHandler(repo RepositoryManager, signer *TokenSigner, mailer Mailer, logger Logger) *InviteUserHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &InviteUserHandler{
		repo:   repo,
		signer: signer,
		mailer: mailer,
		logger: logger,
	}
}

func (h *InviteUserHandler) Execute(ctx context.Context, event InviteUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user invite",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteUserHandler) execute(ctx context.Context, event InviteUserMessage) (*User, error) {
	if err := RequireAdmin(event.Actor); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invite payload")
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().IdentifierTakenTx(ctx, tx, event.Username, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "duplicate check failed")
		}
		if taken {
			return ErrDuplicateIdentity
		}

		user.PasswordHash = RandomPasswordHash()
		user.Email = strings.TrimSpace(event.Email)
		user.Username = getUsername(event.Username, event.Email)
		user.FullName = strings.TrimSpace(event.FullName)
		user.Phone = normalizePhone(event.Phone)
		user.IsAdmin = event.IsAdmin
		user.IsActive = true
		// The inviting admin vouches for the address, and the invitee proves
		// control of it by completing the mailed reset link.
		user.EmailVerified = true
		user.SecretVersion = 1
		if id, err := hashid.NewUUID(event.Email); err == nil {
			user.ID = id
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user invite transaction failed")
	}

	token, err := h.signer.SignPasswordReset(user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign invite token")
	}

	if err := h.mailer.SendWelcome(ctx, user.Email, user.Username, token); err != nil {
		h.logger.Warn("failed to send welcome email to %s: %v", user.Email, err)
	}

	h.logger.Info("user %s invited by %s", user.ID, event.Actor.ID())

	return user, nil
}
