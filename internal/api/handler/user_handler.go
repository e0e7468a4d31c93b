package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// UserHandler serves the authenticated user's own account.
type UserHandler struct {
	authService ports.AuthService
}

func NewUserHandler(authService ports.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// Me returns the caller's profile.
//
// @Summary      Current user profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  profileResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	username, err := ctxUsername(c)
	if err != nil {
		return err
	}
	profile, err := h.authService.Profile(c.Request().Context(), username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfileResponse(profile))
}

// Deactivate disables the caller's account and revokes its extension sessions.
//
// @Summary      Deactivate account
// @Tags         users
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  errorResponse
// @Router       /v1/users/me [delete]
func (h *UserHandler) Deactivate(c echo.Context) error {
	username, err := ctxUsername(c)
	if err != nil {
		return err
	}
	if err := h.authService.Deactivate(c.Request().Context(), username); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateProviderKeys stores provider secrets. The body maps provider ids to
// secrets; null values and ids outside the allow-list are ignored.
//
// @Summary      Update provider keys
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      map[string]string  true  "Provider id to secret"
// @Success      200   {object}  providerKeysUpdateResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /v1/users/me/provider-keys [put]
func (h *UserHandler) UpdateProviderKeys(c echo.Context) error {
	username, err := ctxUsername(c)
	if err != nil {
		return err
	}
	var updates map[string]*string
	if err := c.Bind(&updates); err != nil {
		return domain.ValidationError("body must be an object of provider id to secret")
	}

	updated, err := h.authService.UpdateProviderKeys(c.Request().Context(), username, updates)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, providerKeysUpdateResponse{Updated: nonNil(updated)})
}

// ProviderKeys lists every provider with the caller's secret masked, or null.
//
// @Summary      List provider keys (masked)
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  errorResponse
// @Router       /v1/users/me/provider-keys [get]
func (h *UserHandler) ProviderKeys(c echo.Context) error {
	username, err := ctxUsername(c)
	if err != nil {
		return err
	}
	keys, err := h.authService.ProviderKeys(c.Request().Context(), username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keys)
}
