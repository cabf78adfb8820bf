package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	auth "github.com/pantryhub/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyGenerateAndValidate(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewAPIKeyManager(repo)
	ctx := context.Background()

	key, plaintext, err := manager.Generate(ctx, user.ID, "automation", "home assistant", nil)
	require.NoError(t, err)
	require.NotNil(t, key)

	assert.True(t, strings.HasPrefix(plaintext, auth.APIKeyPrefix))
	assert.Len(t, plaintext, len(auth.APIKeyPrefix)+64)
	assert.NotContains(t, key.KeyHash, plaintext)

	got, gotKey, err := manager.Validate(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, key.ID, gotKey.ID)
}

func TestAPIKeyGenerateRequiresName(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewAPIKeyManager(repo)

	_, _, err := manager.Generate(context.Background(), user.ID, "  ", "", nil)
	assert.Error(t, err)
}

func TestAPIKeyValidateRejections(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewAPIKeyManager(repo)
	ctx := context.Background()

	t.Run("missing prefix", func(t *testing.T) {
		_, _, err := manager.Validate(ctx, "deadbeef")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, _, err := manager.Validate(ctx, auth.APIKeyPrefix+strings.Repeat("0", 64))
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("revoked key", func(t *testing.T) {
		key, plaintext, err := manager.Generate(ctx, user.ID, "revoked", "", nil)
		require.NoError(t, err)
		require.NoError(t, manager.Revoke(ctx, user.ID, key.ID))

		_, _, err = manager.Validate(ctx, plaintext)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("expired key", func(t *testing.T) {
		expired := time.Now().Add(-time.Hour)
		_, plaintext, err := manager.Generate(ctx, user.ID, "expired", "", &expired)
		require.NoError(t, err)

		_, _, err = manager.Validate(ctx, plaintext)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("deactivated owner", func(t *testing.T) {
		ghost := seedUser(t, repo, userSeed{Username: "ghost", Email: "ghost@example.com", IsActive: true})
		_, plaintext, err := manager.Generate(ctx, ghost.ID, "orphan", "", nil)
		require.NoError(t, err)

		require.NoError(t, repo.Users().SetActiveFlagTx(ctx, repo.DB(), ghost.ID, false))

		_, _, err = manager.Validate(ctx, plaintext)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestAPIKeyOwnershipIsPrivate(t *testing.T) {
	repo := setupRepo(t)
	owner := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})
	intruder := seedUser(t, repo, userSeed{Username: "bob", Email: "bob@example.com", IsActive: true})

	manager := auth.NewAPIKeyManager(repo)
	ctx := context.Background()

	key, _, err := manager.Generate(ctx, owner.ID, "mine", "", nil)
	require.NoError(t, err)

	// Someone else's key behaves like a missing one.
	assert.Error(t, manager.Revoke(ctx, intruder.ID, key.ID))
	assert.Error(t, manager.Delete(ctx, intruder.ID, key.ID))
	assert.Error(t, manager.Rename(ctx, intruder.ID, key.ID, "stolen", ""))

	assert.Error(t, manager.Revoke(ctx, owner.ID, uuid.New()))
}

func TestAPIKeyListAndDelete(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewAPIKeyManager(repo)
	ctx := context.Background()

	first, _, err := manager.Generate(ctx, user.ID, "one", "", nil)
	require.NoError(t, err)
	_, _, err = manager.Generate(ctx, user.ID, "two", "", nil)
	require.NoError(t, err)

	keys, err := manager.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, manager.Delete(ctx, user.ID, first.ID))

	keys, err = manager.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	assert.Equal(t, "two", keys[0].Name)
}

func TestAPIKeyRename(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewAPIKeyManager(repo)
	ctx := context.Background()

	key, _, err := manager.Generate(ctx, user.ID, "before", "old desc", nil)
	require.NoError(t, err)

	require.NoError(t, manager.Rename(ctx, user.ID, key.ID, "after", "new desc"))

	keys, err := manager.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "after", keys[0].Name)
	assert.Equal(t, "new desc", keys[0].Description)
}
