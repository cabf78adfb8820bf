package auth_test

import (
	"context"
	"testing"

	auth "github.com/pantryhub/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticatorLoginLogout(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "correct horse battery",
		IsActive: true,
	})

	sessions := auth.NewSessionManager(repo)
	authenticator := auth.NewAuthenticator(auth.NewUserProvider(repo), sessions)
	ctx := context.Background()

	session, identity, err := authenticator.Login(ctx, "ada", "correct horse battery", auth.SessionMetadata{
		IPAddress: "10.0.0.5",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), identity.ID())

	got, _, err := sessions.Validate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, authenticator.Logout(ctx, session.Token))

	_, _, err = sessions.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	// Logout of an already revoked token still succeeds.
	assert.NoError(t, authenticator.Logout(ctx, session.Token))
}

func TestAuthenticatorLoginBadCredentials(t *testing.T) {
	repo := setupRepo(t)
	seedUser(t, repo, userSeed{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "correct horse battery",
		IsActive: true,
	})

	authenticator := auth.NewAuthenticator(auth.NewUserProvider(repo), auth.NewSessionManager(repo))

	_, _, err := authenticator.Login(context.Background(), "ada", "wrong", auth.SessionMetadata{})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
