package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// SessionValidator resolves an extension token to a live session.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*ports.SessionView, error)
}

// ExtensionSession validates the X-Extension-Token header and injects the
// session view and its username into context.
func ExtensionSession(sessions SessionValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(ExtensionTokenHeader)
			if token == "" {
				return domain.ErrUnauthorized
			}

			view, err := sessions.Validate(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set(SessionKey, view)
			c.Set(UsernameKey, view.Username)
			return next(c)
		}
	}
}
