package oidc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pantryhub/go-auth/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIssuer is a minimal OIDC provider: discovery, token, and userinfo.
type fakeIssuer struct {
	server *httptest.Server

	discoveryHits  atomic.Int32
	tokenHits      atomic.Int32
	failDiscovery  atomic.Int32
	failExchange   atomic.Int32
	rejectExchange atomic.Bool
	omitIDToken    atomic.Bool
	lastTokenForm  atomic.Value
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	issuer := &fakeIssuer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		issuer.discoveryHits.Add(1)
		if issuer.failDiscovery.Load() > 0 {
			issuer.failDiscovery.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 issuer.server.URL,
			"authorization_endpoint": issuer.server.URL + "/authorize",
			"token_endpoint":         issuer.server.URL + "/token",
			"userinfo_endpoint":      issuer.server.URL + "/userinfo",
			"jwks_uri":               issuer.server.URL + "/keys",
		})
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		issuer.tokenHits.Add(1)
		require.NoError(t, r.ParseForm())
		issuer.lastTokenForm.Store(r.PostForm)

		if issuer.rejectExchange.Load() {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		if issuer.failExchange.Load() > 0 {
			issuer.failExchange.Add(-1)
			// Unparseable body over a broken connection path.
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		payload := map[string]any{
			"access_token": "access-token-1",
			"id_token":     "id-token-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if issuer.omitIDToken.Load() {
			delete(payload, "id_token")
		}
		json.NewEncoder(w).Encode(payload)
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sub":   "subject-123",
			"email": "ada@example.com",
		})
	})

	issuer.server = httptest.NewServer(mux)
	t.Cleanup(issuer.server.Close)

	return issuer
}

func (f *fakeIssuer) provider() *oidc.Provider {
	return oidc.NewProvider(oidc.Config{
		Name:         "fake",
		IssuerURL:    f.server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://app.example.com/callback",
	})
}

func TestProviderAuthCodeURL(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := issuer.provider()
	ctx := context.Background()

	raw, err := provider.AuthCodeURL(ctx, "state-value", "nonce-value", "challenge-value")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, issuer.server.URL+"/authorize?"))

	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-value", q.Get("state"))
	assert.Equal(t, "nonce-value", q.Get("nonce"))
	assert.Equal(t, "challenge-value", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
}

func TestProviderDiscoveryIsCached(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := issuer.provider()
	ctx := context.Background()

	_, err := provider.AuthCodeURL(ctx, "s", "", "")
	require.NoError(t, err)
	_, err = provider.JWKSURI(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, issuer.discoveryHits.Load())
}

func TestProviderDiscoveryRetriesThenFailsClosed(t *testing.T) {
	issuer := newFakeIssuer(t)
	ctx := context.Background()

	t.Run("one transient failure recovers", func(t *testing.T) {
		issuer.failDiscovery.Store(1)
		provider := issuer.provider()

		_, err := provider.AuthCodeURL(ctx, "s", "", "")
		assert.NoError(t, err)
	})

	t.Run("persistent failure denies", func(t *testing.T) {
		issuer.failDiscovery.Store(10)
		provider := issuer.provider()

		_, err := provider.AuthCodeURL(ctx, "s", "", "")
		assert.Error(t, err)
	})
}

func TestProviderExchange(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := issuer.provider()
	ctx := context.Background()

	token, err := provider.Exchange(ctx, "auth-code", "verifier-value")
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", token.AccessToken)
	assert.Equal(t, "id-token-1", token.IDToken)
	assert.False(t, token.ExpiresAt.IsZero())

	form := issuer.lastTokenForm.Load().(url.Values)
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, "verifier-value", form.Get("code_verifier"))
	assert.Equal(t, "client-secret", form.Get("client_secret"))
}

func TestProviderExchangeRetriesTransportFailure(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := issuer.provider()
	ctx := context.Background()

	issuer.failExchange.Store(1)

	token, err := provider.Exchange(ctx, "auth-code", "")
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", token.AccessToken)
	assert.EqualValues(t, 2, issuer.tokenHits.Load())
}

func TestProviderExchangeRejectionIsTerminal(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := issuer.provider()
	ctx := context.Background()

	issuer.rejectExchange.Store(true)

	_, err := provider.Exchange(ctx, "bad-code", "")
	require.Error(t, err)

	// A provider rejection is not retried.
	assert.EqualValues(t, 1, issuer.tokenHits.Load())
}

func TestProviderUserInfo(t *testing.T) {
	issuer := newFakeIssuer(t)
	provider := issuer.provider()
	ctx := context.Background()

	claims, err := provider.UserInfo(ctx, &oidc.Token{AccessToken: "access-token-1"})
	require.NoError(t, err)
	assert.Equal(t, "subject-123", claims["sub"])

	_, err = provider.UserInfo(ctx, &oidc.Token{AccessToken: "wrong"})
	assert.ErrorIs(t, err, oidc.ErrUserInfoFailed)

	_, err = provider.UserInfo(ctx, nil)
	assert.ErrorIs(t, err, oidc.ErrUserInfoFailed)
}

func TestProviderUnreachable(t *testing.T) {
	provider := oidc.NewProvider(oidc.Config{
		Name:      "gone",
		IssuerURL: "http://127.0.0.1:59999",
		ClientID:  "client-id",
	})

	_, err := provider.AuthCodeURL(context.Background(), "s", "", "")
	assert.Error(t, err)
}
