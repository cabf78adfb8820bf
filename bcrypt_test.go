package auth_test

import (
	"testing"

	auth "github.com/pantryhub/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := auth.HashPassword(tt.password)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)

			err = auth.ComparePasswordAndHash(tt.password, hash)
			assert.NoError(t, err)
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	password := "testPassword123!"
	hash, err := auth.HashPassword(password)
	assert.NoError(t, err)

	assert.NoError(t, auth.ComparePasswordAndHash(password, hash))
	assert.Error(t, auth.ComparePasswordAndHash("wrongPassword", hash))
	assert.Error(t, auth.ComparePasswordAndHash(password, "not-a-hash"))
}

func TestRandomPasswordHash(t *testing.T) {
	hash := auth.RandomPasswordHash()
	require.NotEmpty(t, hash)

	other := auth.RandomPasswordHash()
	assert.NotEqual(t, hash, other)
}
