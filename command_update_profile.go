package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateProfileMessage edits a member's profile. Nil fields are left alone;
// username and email changes are checked against every other account.
type UpdateProfileMessage struct {
	UserID   uuid.UUID `json:"-"`
	Username *string   `json:"username,omitempty"`
	Email    *string   `json:"email,omitempty"`
	FullName *string   `json:"full_name,omitempty"`
	Phone    *string   `json:"phone,omitempty"`
}

func (e UpdateProfileMessage) Type() string { return "user.update_profile" }

func (e UpdateProfileMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.NilOrNotEmpty, validation.Length(3, 100)),
		validation.Field(&e.Email, validation.NilOrNotEmpty, validation.Length(6, 100), is.Email),
		validation.Field(&e.FullName, validation.Length(0, 200)),
	)
}

type UpdateProfileHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewUpdateProfileHandler(repo RepositoryManager, logger Logger) *UpdateProfileHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &UpdateProfileHandler{
		repo:   repo,
		logger: logger,
	}
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) (*User, error) {
	if event.UserID == uuid.Nil {
		return nil, goerrors.New("missing user id", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile payload")
	}

	changes := ProfileChanges{
		Username: event.Username,
		Email:    event.Email,
		FullName: event.FullName,
	}
	if event.Phone != nil {
		normalized := normalizePhone(*event.Phone)
		changes.Phone = &normalized
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.UserID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
		}

		if changes.Empty() {
			user = current
			return nil
		}

		var username, email string
		if changes.Username != nil {
			username = strings.TrimSpace(*changes.Username)
		}
		if changes.Email != nil {
			email = strings.TrimSpace(*changes.Email)
		}

		taken, err := h.repo.Users().IdentifierTakenByOtherTx(ctx, tx, current.ID, username, email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "duplicate check failed")
		}
		if taken {
			return ErrDuplicateIdentity
		}

		if user, err = h.repo.Users().UpdateProfileTx(ctx, tx, current.ID, changes); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "profile update failed")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	return user, nil
}
