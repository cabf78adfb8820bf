package oidc_test

import (
	"context"
	"net/url"
	"testing"

	auth "github.com/pantryhub/go-auth"
	"github.com/pantryhub/go-auth/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthenticator(t *testing.T, issuer *fakeIssuer, policy oidc.Policy) (*oidc.Authenticator, auth.RepositoryManager) {
	t.Helper()

	repo, conns := setupResolverDB(t)
	resolver := oidc.NewResolver(repo, conns, policy)
	sessions := auth.NewSessionManager(repo)

	authenticator := oidc.NewAuthenticator(resolver, sessions, oidc.AuthConfig{
		DefaultRedirectURL: "/home",
		StateEncryptionKey: testEncryptionKey,
		StateHMACKey:       testHMACKey,
	}, oidc.WithProvider(issuer.provider()))

	return authenticator, repo
}

func TestAuthenticatorBegin(t *testing.T) {
	issuer := newFakeIssuer(t)
	authenticator, _ := setupAuthenticator(t, issuer, oidc.Policy{})
	ctx := context.Background()

	redirect, err := authenticator.Begin(ctx, "fake", "/recipes")
	require.NoError(t, err)
	require.NotEmpty(t, redirect.State)
	assert.Equal(t, "fake", redirect.Provider)

	parsed, err := url.Parse(redirect.URL)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, redirect.State, q.Get("state"))
	assert.NotEmpty(t, q.Get("nonce"))
	assert.NotEmpty(t, q.Get("code_challenge"))

	_, err = authenticator.Begin(ctx, "unknown", "")
	assert.ErrorIs(t, err, oidc.ErrProviderNotFound)
}

func TestAuthenticatorCompleteProvisioning(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.omitIDToken.Store(true)

	authenticator, repo := setupAuthenticator(t, issuer, oidc.Policy{AutoCreate: true})
	ctx := context.Background()

	redirect, err := authenticator.Begin(ctx, "fake", "/recipes")
	require.NoError(t, err)

	result, err := authenticator.Complete(ctx, "fake", "auth-code", redirect.State, auth.SessionMetadata{})
	require.NoError(t, err)
	assert.True(t, result.IsNewUser)
	assert.Equal(t, "ada@example.com", result.User.Email)
	assert.Equal(t, "/recipes", result.RedirectURL)
	require.NotNil(t, result.Session)

	// The issued session authenticates like any other.
	sessions := auth.NewSessionManager(repo)
	user, _, err := sessions.Validate(ctx, result.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)
}

func TestAuthenticatorCompleteStateChecks(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.omitIDToken.Store(true)

	authenticator, _ := setupAuthenticator(t, issuer, oidc.Policy{AutoCreate: true})
	ctx := context.Background()

	t.Run("garbage state", func(t *testing.T) {
		_, err := authenticator.Complete(ctx, "fake", "auth-code", "garbage", auth.SessionMetadata{})
		assert.ErrorIs(t, err, oidc.ErrInvalidState)
	})

	t.Run("provider mismatch", func(t *testing.T) {
		redirect, err := authenticator.Begin(ctx, "fake", "")
		require.NoError(t, err)

		_, err = authenticator.Complete(ctx, "other", "auth-code", redirect.State, auth.SessionMetadata{})
		assert.ErrorIs(t, err, oidc.ErrInvalidState)
	})

	t.Run("state replay", func(t *testing.T) {
		redirect, err := authenticator.Begin(ctx, "fake", "")
		require.NoError(t, err)

		_, err = authenticator.Complete(ctx, "fake", "auth-code", redirect.State, auth.SessionMetadata{})
		require.NoError(t, err)

		_, err = authenticator.Complete(ctx, "fake", "auth-code", redirect.State, auth.SessionMetadata{})
		assert.ErrorIs(t, err, oidc.ErrStateReused)
	})
}
