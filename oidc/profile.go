package oidc

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Profile is the normalized view of an external identity. Claim names vary
// across providers, so extraction applies fixed fallbacks and downstream code
// never touches raw claims.
type Profile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Username      string
	AvatarURL     string
	Raw           map[string]any
}

// ProfileFromClaims normalizes a verified claim set. Subject falls back from
// sub to oid, email from email to upn, username from preferred_username to
// the email local part.
func ProfileFromClaims(provider string, claims jwt.MapClaims) (*Profile, error) {
	subject := claimString(claims, "sub")
	if subject == "" {
		subject = claimString(claims, "oid")
	}
	if subject == "" {
		return nil, ErrInvalidIDToken
	}

	email := claimString(claims, "email")
	if email == "" {
		email = claimString(claims, "upn")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	username := claimString(claims, "preferred_username")
	if username == "" && strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	// Some providers address-shape preferred_username; keep the local part.
	if strings.Contains(username, "@") {
		username = strings.Split(username, "@")[0]
	}

	return &Profile{
		Provider:      provider,
		Subject:       subject,
		Email:         email,
		EmailVerified: claimBool(claims, "email_verified"),
		Name:          claimString(claims, "name"),
		Username:      username,
		AvatarURL:     claimString(claims, "picture"),
		Raw:           map[string]any(claims),
	}, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func claimBool(claims jwt.MapClaims, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
