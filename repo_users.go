package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"secret_version" = "secret_version" + 1
WHERE
	"usr"."id" = ?
RETURNING *;`

// demoteAdminSQL re-checks the admin count inside the statement so two
// concurrent demotions cannot both observe ">1 admin" and leave zero.
// That holds only while writers serialize (SQLite); a READ COMMITTED
// backend needs the counted rows locked, e.g. SELECT ... FOR UPDATE.
var demoteAdminSQL = `UPDATE "users" AS "usr"
SET "is_admin" = FALSE
WHERE "usr"."id" = ?
AND "usr"."is_admin" = TRUE
AND (SELECT COUNT(*) FROM "users" WHERE "is_admin" = TRUE AND "id" != ?) > 0
RETURNING *;`

type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error)

	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	IdentifierTaken(ctx context.Context, username, email string) (bool, error)
	IdentifierTakenTx(ctx context.Context, tx bun.IDB, username, email string) (bool, error)
	IdentifierTakenByOtherTx(ctx context.Context, tx bun.IDB, id uuid.UUID, username, email string) (bool, error)

	UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, changes ProfileChanges) (*User, error)
	CountAllTx(ctx context.Context, tx bun.IDB) (int, error)

	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	CountAdminsTx(ctx context.Context, tx bun.IDB) (int, error)
	DemoteAdminTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
	PromoteAdminTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	SetActiveFlagTx(ctx context.Context, tx bun.IDB, id uuid.UUID, active bool) error
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// GetByIdentifier resolves id, email, or username in that order.
func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (a *users) IdentifierTaken(ctx context.Context, username, email string) (bool, error) {
	return a.IdentifierTakenTx(ctx, a.db, username, email)
}

func (a *users) IdentifierTakenTx(ctx context.Context, tx bun.IDB, username, email string) (bool, error) {
	q := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.username = ?", username)

	if email != "" {
		q = q.WhereOr("?TableAlias.email = ?", email)
	}

	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IdentifierTakenByOtherTx reports whether a different user already holds the
// username or email. Empty values are not checked.
func (a *users) IdentifierTakenByOtherTx(ctx context.Context, tx bun.IDB, id uuid.UUID, username, email string) (bool, error) {
	if username == "" && email == "" {
		return false, nil
	}

	q := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.id != ?", id.String()).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if username != "" {
				q = q.Where("?TableAlias.username = ?", username)
			}
			if email != "" {
				q = q.WhereOr("?TableAlias.email = ?", email)
			}
			return q
		})

	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ProfileChanges carries the mutable profile columns; nil fields are left
// untouched.
type ProfileChanges struct {
	Username *string
	Email    *string
	FullName *string
	Phone    *string
}

func (c ProfileChanges) Empty() bool {
	return c.Username == nil && c.Email == nil && c.FullName == nil && c.Phone == nil
}

// UpdateProfileTx writes only the columns present in changes, then returns
// the fresh row. Updating through the ORM model would zero the columns we
// did not touch.
func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, changes ProfileChanges) (*User, error) {
	q := tx.NewUpdate().
		Model((*User)(nil)).
		Where("id = ?", id.String())

	if changes.Username != nil {
		q = q.Set("username = ?", strings.TrimSpace(*changes.Username))
	}
	if changes.Email != nil {
		q = q.Set("email = ?", strings.TrimSpace(*changes.Email))
	}
	if changes.FullName != nil {
		q = q.Set("full_name = ?", strings.TrimSpace(*changes.FullName))
	}
	if changes.Phone != nil {
		q = q.Set("phone_number = ?", *changes.Phone)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return a.GetByIdentifierTx(ctx, tx, id.String())
}

func (a *users) CountAllTx(ctx context.Context, tx bun.IDB) (int, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Count(ctx)
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: updating through the ORM would zero unrelated boolean columns,
	// keep this as raw SQL.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET "last_login_at" = ?
		WHERE ("usr".id = ?);
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("email_verified = TRUE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) CountAdminsTx(ctx context.Context, tx bun.IDB) (int, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.is_admin = TRUE").
		Count(ctx)
}

// DemoteAdminTx clears the admin flag. It returns false when the guarded
// statement matched no row, which means the target is the last admin or
// was not an admin to begin with.
func (a *users) DemoteAdminTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	res, err := a.Repository.RawTx(ctx, tx, demoteAdminSQL, id.String(), id.String())
	if err != nil {
		return false, err
	}
	return len(res) > 0, nil
}

func (a *users) PromoteAdminTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_admin = TRUE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) SetActiveFlagTx(ctx context.Context, tx bun.IDB, id uuid.UUID, active bool) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *users) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
