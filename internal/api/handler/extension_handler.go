package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/api/middleware"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// ExtensionHandler is the browser-extension bridge. Every route except login
// and logout runs behind the ExtensionSession middleware.
type ExtensionHandler struct {
	broker  ports.SessionBroker
	exec    ports.ExecutionService
	catalog ports.ProviderCatalog
}

func NewExtensionHandler(broker ports.SessionBroker, exec ports.ExecutionService, catalog ports.ProviderCatalog) *ExtensionHandler {
	return &ExtensionHandler{broker: broker, exec: exec, catalog: catalog}
}

// Login verifies the password and issues a session token carrying a snapshot
// of the user's provider availability.
//
// @Summary      Extension login
// @Tags         extension
// @Accept       json
// @Produce      json
// @Param        body  body      extensionLoginRequest  true  "Credentials"
// @Success      200   {object}  extensionLoginResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /api/extension/login [post]
func (h *ExtensionHandler) Login(c echo.Context) error {
	var req extensionLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	issued, err := h.broker.Issue(c.Request().Context(), req.Username, req.Password, req.DeviceID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, extensionLoginResponse{
		Username:             issued.Username,
		Token:                issued.Token,
		AvailabilitySnapshot: issued.Snapshot,
		AvailableProviders:   nonNil(issued.AvailableProviders),
	})
}

// Logout revokes the session in the X-Extension-Token header. It succeeds for
// unknown and already revoked tokens.
//
// @Summary      Extension logout
// @Tags         extension
// @Produce      json
// @Param        X-Extension-Token  header    string  false  "Session token"
// @Success      200                {object}  statusResponse
// @Router       /api/extension/logout [post]
func (h *ExtensionHandler) Logout(c echo.Context) error {
	token := c.Request().Header.Get(middleware.ExtensionTokenHeader)
	if err := h.broker.Revoke(c.Request().Context(), token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "logged_out"})
}

// Status describes the caller's session.
//
// @Summary      Extension session status
// @Tags         extension
// @Produce      json
// @Param        X-Extension-Token  header    string  true  "Session token"
// @Success      200                {object}  extensionStatusResponse
// @Failure      401                {object}  errorResponse
// @Router       /api/extension/status [get]
func (h *ExtensionHandler) Status(c echo.Context) error {
	view, err := ctxSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, extensionStatusResponse{
		Username:           view.Username,
		AvailableProviders: nonNil(h.catalog.AvailableIDs(view)),
		CreatedAt:          view.CreatedAt,
		DeviceID:           view.DeviceID,
	})
}

// Execute runs a task with the caller's own provider secrets. The provider
// defaults to "auto".
//
// @Summary      Extension execute
// @Tags         extension
// @Accept       json
// @Produce      json
// @Param        X-Extension-Token  header    string                   true  "Session token"
// @Param        body               body      extensionExecuteRequest  true  "Task"
// @Success      200                {object}  executeResponse
// @Failure      400                {object}  errorResponse
// @Failure      401                {object}  errorResponse
// @Failure      404                {object}  errorResponse
// @Failure      503                {object}  errorResponse
// @Router       /api/extension/execute [post]
func (h *ExtensionHandler) Execute(c echo.Context) error {
	view, err := ctxSession(c)
	if err != nil {
		return err
	}
	var req extensionExecuteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	provider := req.Provider
	if provider == "" {
		provider = ports.AutoProvider
	}

	rec, err := h.exec.ExecuteSession(c.Request().Context(), *view, ports.ExecuteInput{
		ProviderID: provider,
		Task:       req.Task,
		Context:    req.Context,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toExecuteResponse(rec))
}

// Providers lists the providers available to the caller's session.
//
// @Summary      Extension providers
// @Tags         extension
// @Produce      json
// @Param        X-Extension-Token  header    string  true  "Session token"
// @Success      200                {object}  extensionProvidersResponse
// @Failure      401                {object}  errorResponse
// @Router       /api/extension/providers [get]
func (h *ExtensionHandler) Providers(c echo.Context) error {
	view, err := ctxSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, extensionProvidersResponse{
		Available: nonNil(h.catalog.AvailableIDs(view)),
		Total:     len(h.catalog.IDs()),
	})
}
