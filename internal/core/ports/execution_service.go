package ports

import (
	"context"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// AutoProvider selects the first available provider in registry order.
const AutoProvider = "auto"

// ExecuteInput is a task request from either front door.
type ExecuteInput struct {
	Username   string
	ProviderID string
	Task       string
	Context    map[string]any
}

// ExecutionService runs tasks through the router and records the outcome.
type ExecutionService interface {
	// ExecuteDirect uses the process-wide provider secrets.
	ExecuteDirect(ctx context.Context, in ExecuteInput) (domain.InteractionRecord, error)
	// ExecuteSession uses the session's snapshot and the user's stored secrets.
	ExecuteSession(ctx context.Context, session SessionView, in ExecuteInput) (domain.InteractionRecord, error)
	GlobalProviders() []ProviderStatus
	History(limit int) []domain.InteractionRecord
	Search(query string) []domain.InteractionRecord
}
