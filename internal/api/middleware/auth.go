package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// Context keys set by the middleware in this package.
const (
	UsernameKey = "username"
	SessionKey  = "extension_session"
)

// ExtensionTokenHeader carries the extension session token.
const ExtensionTokenHeader = "X-Extension-Token"

// TokenVerifier resolves an identity token to its username.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Auth validates the bearer identity token and injects the username into context.
func Auth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			username, err := verifier.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				// Expired and malformed tokens keep their own error kinds.
				return err
			}
			if username == "" {
				return domain.ErrTokenInvalid
			}

			c.Set(UsernameKey, username)
			return next(c)
		}
	}
}
