package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 1000
)

// MemoryHandler exposes the interaction log.
type MemoryHandler struct {
	exec ports.ExecutionService
}

func NewMemoryHandler(exec ports.ExecutionService) *MemoryHandler {
	return &MemoryHandler{exec: exec}
}

// History returns the most recent interactions, oldest first.
//
// @Summary      Interaction history
// @Tags         memory
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Number of records (default 10)"
// @Success      200    {object}  historyResponse
// @Failure      400    {object}  errorResponse
// @Router       /v1/memory/history [get]
func (h *MemoryHandler) History(c echo.Context) error {
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return domain.ValidationError("limit must be a non-negative integer")
		}
		limit = min(n, maxHistoryLimit)
	}

	records := nonNil(h.exec.History(limit))
	return c.JSON(http.StatusOK, historyResponse{Records: records, Count: len(records)})
}

// Search returns interactions whose provider, task or result contains the
// query, case-insensitively.
//
// @Summary      Search interactions
// @Tags         memory
// @Produce      json
// @Security     BearerAuth
// @Param        query  query     string  true  "Substring to look for"
// @Success      200    {object}  searchResponse
// @Failure      400    {object}  errorResponse
// @Router       /v1/memory/search [get]
func (h *MemoryHandler) Search(c echo.Context) error {
	query := c.QueryParam("query")
	if strings.TrimSpace(query) == "" {
		return domain.ValidationError("query is required")
	}
	records := nonNil(h.exec.Search(query))
	return c.JSON(http.StatusOK, searchResponse{Query: query, Records: records, Count: len(records)})
}
