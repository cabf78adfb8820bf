package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	// DefaultAPIKeyHeader carries integration credentials.
	DefaultAPIKeyHeader = "X-API-Key"
	// DefaultSessionCookie carries the opaque session token for browsers.
	DefaultSessionCookie = "session_token"

	identityLocalsKey = "auth_identity"
	methodLocalsKey   = "auth_method"
)

// HTTPAuthenticator wires the credential stores into fiber middleware.
type HTTPAuthenticator struct {
	sessions     *SessionManager
	apiKeys      *APIKeyManager
	apiKeyHeader string
	cookieName   string
	logger       Logger
	debug        bool
}

type HTTPOption func(*HTTPAuthenticator)

func WithHTTPLogger(logger Logger) HTTPOption {
	return func(a *HTTPAuthenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithAPIKeyHeader(header string) HTTPOption {
	return func(a *HTTPAuthenticator) {
		if header != "" {
			a.apiKeyHeader = header
		}
	}
}

func WithSessionCookieName(name string) HTTPOption {
	return func(a *HTTPAuthenticator) {
		if name != "" {
			a.cookieName = name
		}
	}
}

func WithHTTPDebug(debug bool) HTTPOption {
	return func(a *HTTPAuthenticator) {
		a.debug = debug
	}
}

func NewHTTPAuthenticator(sessions *SessionManager, apiKeys *APIKeyManager, opts ...HTTPOption) *HTTPAuthenticator {
	authenticator := &HTTPAuthenticator{
		sessions:     sessions,
		apiKeys:      apiKeys,
		apiKeyHeader: DefaultAPIKeyHeader,
		cookieName:   DefaultSessionCookie,
		logger:       defLogger{},
	}

	for _, opt := range opts {
		opt(authenticator)
	}

	return authenticator
}

// CombinedAuth authenticates a request from whichever credential it carries.
// Precedence is fixed: API key header, then bearer header, then session
// cookie. A present-but-invalid credential fails the request; we never fall
// through to a weaker credential.
func (a *HTTPAuthenticator) CombinedAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get(a.apiKeyHeader); key != "" {
			return a.authenticateAPIKey(c, key)
		}

		if token := bearerToken(c.Get(fiber.HeaderAuthorization)); token != "" {
			return a.authenticateSession(c, token, MethodBearer)
		}

		if token := c.Cookies(a.cookieName); token != "" {
			return a.authenticateSession(c, token, MethodSession)
		}

		return unauthorized(c, "missing credentials")
	}
}

// RequireAdmin rejects requests whose principal is not an administrator. It
// must run after CombinedAuth.
func (a *HTTPAuthenticator) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok {
			return unauthorized(c, "missing credentials")
		}
		if !identity.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": ErrPermissionDenied.Message,
				"code":  TextCodePermissionDenied,
			})
		}
		return c.Next()
	}
}

func (a *HTTPAuthenticator) authenticateAPIKey(c *fiber.Ctx, key string) error {
	user, record, err := a.apiKeys.Validate(c.UserContext(), key)
	if err != nil {
		a.logger.Debug("api key auth failed: %v", err)
		return unauthorized(c, "invalid credentials")
	}

	if a.debug {
		a.logger.Debug("api key auth: %s", print.MaybeHighlightJSON(record))
	}

	return a.succeed(c, user, MethodAPIKey)
}

func (a *HTTPAuthenticator) authenticateSession(c *fiber.Ctx, token string, method AuthMethod) error {
	user, session, err := a.sessions.Validate(c.UserContext(), token)
	if err != nil {
		a.logger.Debug("session auth failed: %v", err)
		return unauthorized(c, "invalid or expired session")
	}

	if a.debug {
		a.logger.Debug("session auth: %s", print.MaybeHighlightJSON(session))
	}

	return a.succeed(c, user, method)
}

func (a *HTTPAuthenticator) succeed(c *fiber.Ctx, user *User, method AuthMethod) error {
	identity := NewIdentityFromUser(user)
	c.Locals(identityLocalsKey, identity)
	c.Locals(methodLocalsKey, method)
	c.SetUserContext(WithAuthMethod(WithIdentity(c.UserContext(), identity), method))
	return c.Next()
}

// IdentityFrom returns the authenticated principal stored by CombinedAuth.
func IdentityFrom(c *fiber.Ctx) (Identity, bool) {
	identity, ok := c.Locals(identityLocalsKey).(Identity)
	return identity, ok
}

// AuthMethodFrom returns the credential type stored by CombinedAuth.
func AuthMethodFrom(c *fiber.Ctx) (AuthMethod, bool) {
	method, ok := c.Locals(methodLocalsKey).(AuthMethod)
	return method, ok
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
		"code":  goerrors.CodeUnauthorized,
	})
}
