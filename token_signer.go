package auth

import (
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is the decoded payload of a purpose-scoped token.
type TokenClaims struct {
	Subject       uuid.UUID
	Purpose       TokenPurpose
	SecretVersion int
}

// TokenSigner mints and verifies stateless single-use tokens for the reset
// and verification flows. Tokens carry the user's secret_version; bumping the
// version on password change invalidates everything signed before it.
type TokenSigner struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

type TokenSignerOption func(*TokenSigner)

func WithTokenClock(now func() time.Time) TokenSignerOption {
	return func(s *TokenSigner) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTokenIssuer(issuer string) TokenSignerOption {
	return func(s *TokenSigner) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

func NewTokenSigner(signingKey string, opts ...TokenSignerOption) *TokenSigner {
	signer := &TokenSigner{
		signingKey: []byte(signingKey),
		issuer:     "go-auth",
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(signer)
	}

	return signer
}

// SignPasswordReset mints a reset token bound to the user's current secret
// version.
func (s *TokenSigner) SignPasswordReset(user *User) (string, error) {
	return s.mint(user, PurposePasswordReset, PasswordResetTTL)
}

// SignEmailVerification mints a verification token.
func (s *TokenSigner) SignEmailVerification(user *User) (string, error) {
	return s.mint(user, PurposeEmailVerify, EmailVerifyTTL)
}

func (s *TokenSigner) mint(user *User, purpose TokenPurpose, ttl time.Duration) (string, error) {
	if user == nil {
		return "", goerrors.New("cannot sign token for nil user", goerrors.CategoryBadInput)
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": user.ID.String(),
		"prp": purpose,
		"ver": user.SecretVersion,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Verify checks the signature, expiry, and purpose of a token. It does not
// consult storage; callers compare the returned SecretVersion against the
// user's current value to enforce single use.
func (s *TokenSigner) Verify(tokenString string, purpose TokenPurpose) (*TokenClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTamperedToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTamperedToken
	}

	// A token minted for one flow must not unlock another.
	prp, _ := claims["prp"].(string)
	if prp != purpose {
		return nil, ErrTamperedToken
	}

	sub, _ := claims["sub"].(string)
	subject, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrTamperedToken
	}

	rawVer, ok := claims["ver"].(float64)
	if !ok {
		return nil, ErrTamperedToken
	}

	return &TokenClaims{
		Subject:       subject,
		Purpose:       prp,
		SecretVersion: int(rawVer),
	}, nil
}
