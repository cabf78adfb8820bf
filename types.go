package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal.
type Identity interface {
	ID() string
	Username() string
	Email() string
	IsAdmin() bool
}

// IdentityProvider resolves identities from stored credentials.
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// Config holds auth options.
type Config interface {
	GetSigningKey() string
	GetSessionTTL() time.Duration
	GetSessionCookieName() string
	GetAPIKeyHeader() string
	GetIssuer() string
}

// Mailer delivers verification and reset links. Delivery is an external
// collaborator; this package only produces the token and link path.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendEmailVerification(ctx context.Context, email, token string) error
	SendWelcome(ctx context.Context, email, username, resetToken string) error
}

// NoopMailer drops every message. Useful for tests and installs without an
// outbound mail path.
type NoopMailer struct{}

func (NoopMailer) SendPasswordReset(context.Context, string, string) error { return nil }

func (NoopMailer) SendEmailVerification(context.Context, string, string) error { return nil }

func (NoopMailer) SendWelcome(context.Context, string, string, string) error { return nil }

// DefaultLogger returns the built-in printf logger.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
