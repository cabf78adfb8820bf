package oidc

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// IDTokenVerifier validates identity tokens against the provider's published
// key set. Keys refresh in the background so rotation does not interrupt
// logins.
type IDTokenVerifier struct {
	provider *Provider

	mu   sync.Mutex
	jwks *keyfunc.JWKS
}

func NewIDTokenVerifier(provider *Provider) *IDTokenVerifier {
	return &IDTokenVerifier{provider: provider}
}

func (v *IDTokenVerifier) keySet(ctx context.Context) (*keyfunc.JWKS, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.jwks != nil {
		return v.jwks, nil
	}

	uri, err := v.provider.JWKSURI(ctx)
	if err != nil {
		return nil, err
	}

	jwks, err := keyfunc.Get(uri, keyfunc.Options{
		Ctx: context.Background(),
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to refresh JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, ErrProviderUnavailable
	}

	v.jwks = jwks
	return jwks, nil
}

// Verify checks signature, issuer, audience, and expiry, then normalizes the
// claims into a Profile.
func (v *IDTokenVerifier) Verify(ctx context.Context, idToken string) (*Profile, error) {
	jwks, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(idToken, claims, jwks.Keyfunc,
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodES256.Alg(),
		}),
		jwt.WithIssuer(v.provider.Issuer()),
		jwt.WithAudience(v.provider.ClientID()),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidIDToken
	}

	return ProfileFromClaims(v.provider.Name(), claims)
}
