package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
	// UseHashid derives the user id from the email, giving imports and
	// repeated seed runs stable identifiers.
	UseHashid bool
}

func (e RegisterUserMessage) Type() string { return "user.register" }

func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required, validation.Length(3, 100)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.FullName, validation.Length(0, 200)),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
	)
}

type RegisterUserHandler struct {
	repo   RepositoryManager
	signer *TokenSigner
	mailer Mailer
	logger Logger
}

func NewRegisterUserHandler(repo RepositoryManager, signer *TokenSigner, mailer Mailer, logger Logger) *RegisterUserHandler {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &RegisterUserHandler{
		repo:   repo,
		signer: signer,
		mailer: mailer,
		logger: logger,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
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

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = strings.TrimSpace(event.Email)
		user.Username = getUsername(event.Username, event.Email)
		user.FullName = strings.TrimSpace(event.FullName)
		user.Phone = normalizePhone(event.Phone)
		user.IsAdmin = event.IsAdmin
		user.IsActive = true
		user.SecretVersion = 1
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
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
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if h.signer != nil {
		if token, err := h.signer.SignEmailVerification(user); err == nil {
			if err := h.mailer.SendEmailVerification(ctx, user.Email, token); err != nil {
				h.logger.Warn("failed to send verification email to %s: %v", user.Email, err)
			}
		}
	}

	return user, nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}

// normalizePhone stores numbers in E.164 when they parse, and keeps the raw
// input otherwise so imports do not lose data.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, "US")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
