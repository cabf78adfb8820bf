package auth

import "github.com/goliatone/go-errors"

const (
	TextCodeDuplicateIdentity  = "auth_duplicate_identity"
	TextCodeInvalidCredentials = "auth_invalid_credentials"
	TextCodeSessionExpired     = "auth_session_expired"
	TextCodeSessionNotFound    = "auth_session_not_found"
	TextCodeTokenExpired       = "auth_token_expired"
	TextCodeTokenTampered      = "auth_token_tampered"
	TextCodePermissionDenied   = "auth_permission_denied"
	TextCodeSelfModification   = "auth_self_modification_denied"
	TextCodeLastAdmin          = "auth_last_admin_protected"
	TextCodeEmptyPassword      = "auth_empty_password"
)

// ErrDuplicateIdentity is returned when a username or email is already taken.
var ErrDuplicateIdentity = errors.New("username or email already in use", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(errors.CodeConflict)

// ErrInvalidCredentials collapses every credential failure into one answer so
// callers cannot learn which factor failed.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned when a session is strictly past expires_at.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrSessionNotFound is returned for unknown or revoked session tokens.
var ErrSessionNotFound = errors.New("session not found", errors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a signed token is past its ttl.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTamperedToken is returned when a signed token fails signature, purpose,
// or version checks.
var ErrTamperedToken = errors.New("token signature or scope mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeTokenTampered).
	WithCode(errors.CodeUnauthorized)

// ErrPermissionDenied is returned when a non-admin attempts an admin action.
var ErrPermissionDenied = errors.New("administrator access required", errors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(errors.CodeForbidden)

// ErrSelfModificationDenied is returned when an actor targets their own
// admin flag.
var ErrSelfModificationDenied = errors.New("cannot change own administrator flag", errors.CategoryAuthz).
	WithTextCode(TextCodeSelfModification).
	WithCode(errors.CodeForbidden)

// ErrLastAdminProtected guards the invariant that at least one administrator
// always exists.
var ErrLastAdminProtected = errors.New("cannot remove the last administrator", errors.CategoryConflict).
	WithTextCode(TextCodeLastAdmin).
	WithCode(errors.CodeConflict)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword wraps the bcrypt mismatch sentinel.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)
