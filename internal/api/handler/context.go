package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/api/middleware"
	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// ctxUsername returns the username injected by the Auth middleware. An empty
// value means the route was wired without it.
func ctxUsername(c echo.Context) (string, error) {
	username, _ := c.Get(middleware.UsernameKey).(string)
	if username == "" {
		return "", domain.ErrUnauthorized
	}
	return username, nil
}

// ctxSession returns the session injected by the ExtensionSession middleware.
func ctxSession(c echo.Context) (*ports.SessionView, error) {
	view, _ := c.Get(middleware.SessionKey).(*ports.SessionView)
	if view == nil {
		return nil, domain.ErrUnauthorized
	}
	return view, nil
}

// bindAndValidate decodes the body into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return domain.ValidationError("invalid payload")
	}
	return c.Validate(req)
}
