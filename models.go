package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is a household member account. There is exactly one shared household
// dataset; users are separated only by their private overlays.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string    `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string    `bun:"email,unique" json:"email,omitempty"`
	FullName      string    `bun:"full_name" json:"full_name,omitempty"`
	Phone         string    `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	IsAdmin       bool      `bun:"is_admin,notnull,default:false" json:"is_admin,omitempty"`
	// No default tag: bun would swap a false zero value for the column
	// default on insert, silently activating deactivated accounts.
	IsActive      bool      `bun:"is_active,notnull" json:"is_active,omitempty"`
	EmailVerified bool      `bun:"email_verified,notnull,default:false" json:"email_verified,omitempty"`
	// SecretVersion is embedded in signed single-use tokens and bumped on
	// every password change, invalidating outstanding reset tokens.
	SecretVersion int        `bun:"secret_version,notnull,default:1" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
}

// Session is an opaque bearer credential for an interactive context. Many
// sessions may exist per user; they die on logout or expiry.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`

	ID         uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID     uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User       *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token      string     `bun:"token,notnull,unique" json:"-"`
	CreatedAt  *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	LastUsedAt *time.Time `bun:"last_used_at,nullzero" json:"last_used_at,omitempty"`
	IPAddress  string     `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string     `bun:"user_agent" json:"user_agent,omitempty"`
}

// Expired reports whether the session is strictly past its deadline.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ApiKey is a long-lived integration credential. The plaintext key exists
// only at creation time; the row keeps a one-way digest.
type ApiKey struct {
	bun.BaseModel `bun:"table:api_keys,alias:key"`

	ID          uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID      uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	KeyHash     string     `bun:"key_hash,notnull,unique" json:"-"`
	Name        string     `bun:"name,notnull" json:"name,omitempty"`
	Description string     `bun:"description" json:"description,omitempty"`
	CreatedAt   *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	LastUsedAt  *time.Time `bun:"last_used_at,nullzero" json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	IsActive    bool       `bun:"is_active,notnull" json:"is_active,omitempty"`
}

// Usable reports whether the key may still authenticate requests.
func (k *ApiKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}

// TokenPurpose scopes a signed single-use token to exactly one flow.
type TokenPurpose = string

const (
	// PurposePasswordReset tokens authorize a one-time password change.
	PurposePasswordReset TokenPurpose = "password-reset"
	// PurposeEmailVerify tokens flip email_verified once.
	PurposeEmailVerify TokenPurpose = "email-verify"
)

const (
	// PasswordResetTTL bounds reset links.
	PasswordResetTTL = time.Hour
	// EmailVerifyTTL bounds verification links.
	EmailVerifyTTL = 24 * time.Hour
	// DefaultSessionTTL is how long an interactive session lives.
	DefaultSessionTTL = 30 * 24 * time.Hour
)
