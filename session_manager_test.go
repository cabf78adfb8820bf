package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/pantryhub/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerCreateAndValidate(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewSessionManager(repo)
	ctx := context.Background()

	session, err := manager.Create(ctx, user.ID, auth.SessionMetadata{
		IPAddress: "10.0.0.5",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	got, gotSession, err := manager.Validate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, session.Token, gotSession.Token)
}

func TestSessionManagerTokensAreUnique(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewSessionManager(repo)
	ctx := context.Background()

	first, err := manager.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)
	second, err := manager.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

func TestSessionManagerUnknownToken(t *testing.T) {
	repo := setupRepo(t)
	manager := auth.NewSessionManager(repo)

	_, _, err := manager.Validate(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	_, _, err = manager.Validate(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestSessionManagerExpiredSessionIsDeleted(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	creator := auth.NewSessionManager(repo,
		auth.WithSessionTTL(time.Hour),
		auth.WithSessionClock(fixedClock(past)),
	)

	session, err := creator.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	manager := auth.NewSessionManager(repo)

	_, _, err = manager.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrSessionExpired)

	// The expired row is gone; a second attempt reads as unknown.
	_, _, err = manager.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestSessionManagerDeactivatedUser(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewSessionManager(repo)
	ctx := context.Background()

	session, err := manager.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, repo.Users().SetActiveFlagTx(ctx, repo.DB(), user.ID, false))

	_, _, err = manager.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestSessionManagerRevokeIsIdempotent(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	manager := auth.NewSessionManager(repo)
	ctx := context.Background()

	session, err := manager.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, manager.Revoke(ctx, session.Token))
	require.NoError(t, manager.Revoke(ctx, session.Token))
	require.NoError(t, manager.Revoke(ctx, "never-existed"))

	_, _, err = manager.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestSessionManagerRevokeAllForUser(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})
	other := seedUser(t, repo, userSeed{Username: "bob", Email: "bob@example.com", IsActive: true})

	manager := auth.NewSessionManager(repo)
	ctx := context.Background()

	_, err := manager.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)
	_, err = manager.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)
	keep, err := manager.Create(ctx, other.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	count, err := manager.RevokeAllForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, _, err = manager.Validate(ctx, keep.Token)
	assert.NoError(t, err)
}

func TestSessionManagerSweepExpired(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)

	stale := auth.NewSessionManager(repo,
		auth.WithSessionTTL(time.Hour),
		auth.WithSessionClock(fixedClock(past)),
	)
	_, err := stale.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	manager := auth.NewSessionManager(repo)
	live, err := manager.Create(ctx, user.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	count, err := manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, _, err = manager.Validate(ctx, live.Token)
	assert.NoError(t, err)
}
