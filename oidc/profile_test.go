package oidc_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pantryhub/go-auth/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileFromClaims(t *testing.T) {
	profile, err := oidc.ProfileFromClaims("google", jwt.MapClaims{
		"sub":            "subject-123",
		"email":          " Ada@Example.com ",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"picture":        "https://example.com/avatar.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "google", profile.Provider)
	assert.Equal(t, "subject-123", profile.Subject)
	assert.Equal(t, "ada@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Ada Lovelace", profile.Name)
	assert.Equal(t, "ada", profile.Username)
	assert.Equal(t, "https://example.com/avatar.png", profile.AvatarURL)
}

func TestProfileFromClaimsFallbacks(t *testing.T) {
	t.Run("oid stands in for sub", func(t *testing.T) {
		profile, err := oidc.ProfileFromClaims("entra", jwt.MapClaims{
			"oid": "object-id-9",
			"upn": "ada@corp.example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "object-id-9", profile.Subject)
		assert.Equal(t, "ada@corp.example.com", profile.Email)
	})

	t.Run("preferred_username keeps local part", func(t *testing.T) {
		profile, err := oidc.ProfileFromClaims("entra", jwt.MapClaims{
			"sub":                "subject-123",
			"preferred_username": "ada@corp.example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "ada", profile.Username)
	})

	t.Run("email_verified as string", func(t *testing.T) {
		profile, err := oidc.ProfileFromClaims("google", jwt.MapClaims{
			"sub":            "subject-123",
			"email":          "ada@example.com",
			"email_verified": "true",
		})
		require.NoError(t, err)
		assert.True(t, profile.EmailVerified)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		_, err := oidc.ProfileFromClaims("google", jwt.MapClaims{
			"email": "ada@example.com",
		})
		assert.ErrorIs(t, err, oidc.ErrInvalidIDToken)
	})
}
