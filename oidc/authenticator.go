package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/pantryhub/go-auth"
)

// Authenticator orchestrates the full handshake: redirect out, callback in,
// identity verification, account resolution, session creation.
type Authenticator struct {
	providers    map[string]*Provider
	verifiers    map[string]*IDTokenVerifier
	stateManager StateManager
	nonces       *NonceRegistry
	resolver     *Resolver
	sessions     *auth.SessionManager
	config       AuthConfig
	logger       auth.Logger
}

// AuthConfig configures the authenticator.
type AuthConfig struct {
	DefaultRedirectURL string
	StateEncryptionKey []byte
	StateHMACKey       []byte
	StateTTL           time.Duration
}

type AuthOption func(*Authenticator)

// WithProvider registers a provider.
func WithProvider(provider *Provider) AuthOption {
	return func(a *Authenticator) {
		if provider == nil {
			return
		}
		a.providers[provider.Name()] = provider
		a.verifiers[provider.Name()] = NewIDTokenVerifier(provider)
	}
}

// WithStateManager sets a custom state manager.
func WithStateManager(sm StateManager) AuthOption {
	return func(a *Authenticator) {
		a.stateManager = sm
	}
}

func WithAuthLogger(logger auth.Logger) AuthOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAuthenticator(resolver *Resolver, sessions *auth.SessionManager, config AuthConfig, opts ...AuthOption) *Authenticator {
	cfg := config
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	authenticator := &Authenticator{
		providers: make(map[string]*Provider),
		verifiers: make(map[string]*IDTokenVerifier),
		nonces:    NewNonceRegistry(),
		resolver:  resolver,
		sessions:  sessions,
		config:    cfg,
		logger:    auth.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(authenticator)
		}
	}

	if authenticator.stateManager == nil {
		authenticator.stateManager = NewEncryptedStateManager(
			cfg.StateEncryptionKey,
			cfg.StateHMACKey,
			cfg.StateTTL,
		)
	}

	return authenticator
}

// Redirect contains the authorization URL for sending the browser out.
type Redirect struct {
	URL      string
	State    string
	Provider string
}

// Result is a completed login.
type Result struct {
	User        *auth.User
	Session     *auth.Session
	IsNewUser   bool
	Linked      bool
	RedirectURL string
}

// Begin starts the handshake for a provider.
func (a *Authenticator) Begin(ctx context.Context, providerName, redirectURL string) (*Redirect, error) {
	provider, ok := a.providers[providerName]
	if !ok {
		return nil, ErrProviderNotFound
	}

	if redirectURL == "" {
		redirectURL = a.config.DefaultRedirectURL
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	codeChallenge := computeCodeChallenge(codeVerifier)

	state := &HandshakeState{
		Nonce:        generateNonce(),
		Provider:     providerName,
		CodeVerifier: codeVerifier,
		RedirectURL:  redirectURL,
		IssuedAt:     time.Now().Unix(),
		ExpiresAt:    time.Now().Add(a.config.StateTTL).Unix(),
	}

	stateToken, err := a.stateManager.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	authURL, err := provider.AuthCodeURL(ctx, stateToken, state.Nonce, codeChallenge)
	if err != nil {
		return nil, err
	}

	return &Redirect{
		URL:      authURL,
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// Complete finishes the handshake after the provider callback.
func (a *Authenticator) Complete(ctx context.Context, providerName, code, stateToken string, meta auth.SessionMetadata) (*Result, error) {
	state, err := a.stateManager.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}

	if state.Provider != providerName {
		return nil, ErrInvalidState
	}

	if !a.nonces.Consume(state.Nonce, state.ExpiresAt) {
		return nil, ErrStateReused
	}

	provider, ok := a.providers[providerName]
	if !ok {
		return nil, ErrProviderNotFound
	}

	token, err := provider.Exchange(ctx, code, state.CodeVerifier)
	if err != nil {
		return nil, err
	}

	profile, err := a.profileFromToken(ctx, providerName, provider, token)
	if err != nil {
		return nil, err
	}

	resolution, err := a.resolver.Resolve(ctx, profile)
	if err != nil {
		return nil, err
	}

	session, err := a.sessions.Create(ctx, resolution.User.ID, meta)
	if err != nil {
		return nil, err
	}

	a.logger.Info("completed %s login for user %s", providerName, resolution.User.ID)

	return &Result{
		User:        resolution.User,
		Session:     session,
		IsNewUser:   resolution.IsNewUser,
		Linked:      resolution.Linked,
		RedirectURL: state.RedirectURL,
	}, nil
}

// profileFromToken prefers the signed identity token; userinfo covers
// providers that issue opaque access tokens with thin ID tokens.
func (a *Authenticator) profileFromToken(ctx context.Context, providerName string, provider *Provider, token *Token) (*Profile, error) {
	if token.IDToken != "" {
		verifier, ok := a.verifiers[providerName]
		if !ok {
			return nil, ErrProviderNotFound
		}

		profile, err := verifier.Verify(ctx, token.IDToken)
		if err != nil {
			return nil, err
		}

		if profile.Email != "" {
			return profile, nil
		}

		// ID token verified but carries no address; supplement from userinfo.
		if claims, uerr := provider.UserInfo(ctx, token); uerr == nil {
			merged, merr := ProfileFromClaims(providerName, jwt.MapClaims(claims))
			if merr == nil && merged.Subject == profile.Subject {
				return merged, nil
			}
		}

		return profile, nil
	}

	claims, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	return ProfileFromClaims(providerName, jwt.MapClaims(claims))
}

// Providers lists registered provider names.
func (a *Authenticator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	return names
}
