package oidc

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound    = "oidc_provider_not_found"
	TextCodeProviderUnavailable = "oidc_provider_unavailable"
	TextCodeInvalidState        = "oidc_invalid_state"
	TextCodeStateExpired        = "oidc_state_expired"
	TextCodeStateReused         = "oidc_state_reused"
	TextCodeExchangeFail        = "oidc_token_exchange_failed"
	TextCodeInvalidIDToken      = "oidc_invalid_id_token"
	TextCodeUserInfoFail        = "oidc_user_info_failed"
	TextCodeAuthDenied          = "oidc_authentication_denied"
	TextCodeLastLoginMethod     = "oidc_last_login_method"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("identity provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrProviderUnavailable is returned when the provider cannot be reached.
// The flow fails closed; callers may retry the whole handshake.
var ErrProviderUnavailable = errors.New("identity provider unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(errors.CodeInternal)

// ErrInvalidState is returned when the handshake state is invalid or tampered.
var ErrInvalidState = errors.New("invalid handshake state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the handshake state has expired.
var ErrStateExpired = errors.New("handshake state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrStateReused is returned when a state nonce is presented twice.
var ErrStateReused = errors.New("handshake state already used", errors.CategoryBadInput).
	WithTextCode(TextCodeStateReused).
	WithCode(errors.CodeBadRequest)

// ErrExchangeFailed is returned when the code-for-token exchange fails.
var ErrExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidIDToken is returned when the identity token fails verification.
var ErrInvalidIDToken = errors.New("invalid identity token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidIDToken).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching the profile fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrAuthenticationDenied is returned when the resolver cannot map the
// external identity to an account under the configured policy.
var ErrAuthenticationDenied = errors.New("authentication denied", errors.CategoryAuth).
	WithTextCode(TextCodeAuthDenied).
	WithCode(errors.CodeForbidden)

// ErrLastLoginMethod is returned when unlinking would leave an account with
// no way to sign in.
var ErrLastLoginMethod = errors.New("cannot unlink last login method", errors.CategoryValidation).
	WithTextCode(TextCodeLastLoginMethod).
	WithCode(errors.CodeBadRequest)
