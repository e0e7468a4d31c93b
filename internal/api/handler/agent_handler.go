package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// AgentHandler runs tasks with the process-wide provider secrets.
type AgentHandler struct {
	exec ports.ExecutionService
}

func NewAgentHandler(exec ports.ExecutionService) *AgentHandler {
	return &AgentHandler{exec: exec}
}

// Execute runs a task on the provider named in the path, or on the first
// available provider when the path says "auto". Upstream failures are
// reported in the body with success=false.
//
// @Summary      Execute a task
// @Tags         agent
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string          true  "Provider id or auto"
// @Param        body      body      executeRequest  true  "Task"
// @Success      200       {object}  executeResponse
// @Failure      400       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Failure      503       {object}  errorResponse
// @Router       /v1/agent/{provider}/execute [post]
func (h *AgentHandler) Execute(c echo.Context) error {
	username, err := ctxUsername(c)
	if err != nil {
		return err
	}
	var req executeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	rec, err := h.exec.ExecuteDirect(c.Request().Context(), ports.ExecuteInput{
		Username:   username,
		ProviderID: c.Param("provider"),
		Task:       req.Task,
		Context:    req.Context,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toExecuteResponse(rec))
}

// Providers lists every provider with its availability for the direct API.
//
// @Summary      List providers
// @Tags         agent
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  providersResponse
// @Router       /v1/providers [get]
func (h *AgentHandler) Providers(c echo.Context) error {
	statuses := h.exec.GlobalProviders()
	available := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if s.Available {
			available = append(available, s.ID)
		}
	}
	return c.JSON(http.StatusOK, providersResponse{
		Providers: nonNil(statuses),
		Available: available,
		Total:     len(statuses),
	})
}
