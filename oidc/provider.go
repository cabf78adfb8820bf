package oidc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	discoveryPath = "/.well-known/openid-configuration"

	// providerTimeout bounds every call to the external provider. A slow
	// provider must not hold requests open.
	providerTimeout = 5 * time.Second
)

// Provider talks to one OpenID Connect issuer. Endpoints come from the
// issuer's discovery document, fetched once and cached.
type Provider struct {
	config     Config
	httpClient *http.Client

	mu        sync.Mutex
	discovery *discoveryDocument
}

// Config holds provider registration settings.
type Config struct {
	// Name identifies the provider in routes and stored connections.
	Name string
	// IssuerURL is the base URL, discovery is resolved against it.
	IssuerURL    string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	HTTPClient *http.Client
}

// DefaultScopes returns the standard OIDC scope set.
func DefaultScopes() []string {
	return []string{"openid", "profile", "email"}
}

func NewProvider(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: providerTimeout}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.config.Name
}

// Issuer returns the configured issuer URL.
func (p *Provider) Issuer() string {
	return strings.TrimRight(p.config.IssuerURL, "/")
}

// ClientID returns the registered client id, used as the expected token
// audience.
func (p *Provider) ClientID() string {
	return p.config.ClientID
}

type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// discover fetches and caches the discovery document. One retry on transport
// failure, then fail closed.
func (p *Provider) discover(ctx context.Context) (*discoveryDocument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discovery != nil {
		return p.discovery, nil
	}

	endpoint := p.Issuer() + discoveryPath

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		doc, err := p.fetchDiscovery(ctx, endpoint)
		if err == nil {
			p.discovery = doc
			return doc, nil
		}
		lastErr = err
	}

	return nil, goerrors.Wrap(lastErr, goerrors.CategoryOperation, "provider discovery failed").
		WithTextCode(TextCodeProviderUnavailable)
}

func (p *Provider) fetchDiscovery(ctx context.Context, endpoint string) (*discoveryDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerrors.New("unexpected discovery status", goerrors.CategoryOperation).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return nil, goerrors.New("incomplete discovery document", goerrors.CategoryOperation)
	}

	return &doc, nil
}

// JWKSURI returns the issuer's key set endpoint.
func (p *Provider) JWKSURI(ctx context.Context) (string, error) {
	doc, err := p.discover(ctx)
	if err != nil {
		return "", err
	}
	if doc.JWKSURI == "" {
		return "", ErrProviderUnavailable
	}
	return doc.JWKSURI, nil
}

// AuthCodeURL builds the redirect URL for the authorization request.
func (p *Provider) AuthCodeURL(ctx context.Context, state, nonce, codeChallenge string) (string, error) {
	doc, err := p.discover(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.CallbackURL},
		"scope":         {strings.Join(p.config.Scopes, " ")},
		"state":         {state},
	}
	if nonce != "" {
		params.Set("nonce", nonce)
	}
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", "S256")
	}

	return doc.AuthorizationEndpoint + "?" + params.Encode(), nil
}

// Token is the provider's response to a code exchange.
type Token struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// Exchange trades an authorization code for tokens. One retry on transport
// failure; provider-reported errors are terminal.
func (p *Provider) Exchange(ctx context.Context, code, codeVerifier string) (*Token, error) {
	doc, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.config.CallbackURL},
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		token, terminal, err := p.postToken(ctx, doc.TokenEndpoint, data)
		if err == nil {
			return token, nil
		}
		if terminal {
			return nil, err
		}
		lastErr = err
	}

	return nil, goerrors.Wrap(lastErr, goerrors.CategoryOperation, "token endpoint unreachable").
		WithTextCode(TextCodeProviderUnavailable)
}

func (p *Provider) postToken(ctx context.Context, endpoint string, data url.Values) (*Token, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, true, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, true, ErrExchangeFailed
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		return nil, true, goerrors.New("token exchange rejected", goerrors.CategoryAuth).
			WithTextCode(TextCodeExchangeFail).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{
				"status":            resp.StatusCode,
				"error":             tokenResp.Error,
				"error_description": tokenResp.ErrorDesc,
			})
	}

	if tokenResp.AccessToken == "" && tokenResp.IDToken == "" {
		return nil, true, ErrExchangeFailed
	}

	token := &Token{
		AccessToken:  tokenResp.AccessToken,
		IDToken:      tokenResp.IDToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
	}
	if tokenResp.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return token, false, nil
}

// UserInfo fetches profile claims from the userinfo endpoint. Used when the
// identity token is missing claims the resolver needs.
func (p *Provider) UserInfo(ctx context.Context, token *Token) (map[string]any, error) {
	doc, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	if doc.UserInfoEndpoint == "" || token == nil || token.AccessToken == "" {
		return nil, ErrUserInfoFailed
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.UserInfoEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "userinfo endpoint unreachable").
			WithTextCode(TextCodeProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUserInfoFailed
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, ErrUserInfoFailed
	}

	return claims, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}
