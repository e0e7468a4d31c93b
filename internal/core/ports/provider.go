package ports

import (
	"context"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// Task is the unit of work sent to a provider.
type Task struct {
	Text    string
	Context map[string]any
}

// ProviderClient is the upstream call capability of one provider. Clients are
// long-lived and shared; the secret is supplied per call.
type ProviderClient interface {
	Invoke(ctx context.Context, secret string, task Task) (string, error)
}

// AvailabilityView answers whether a provider may be used in some scope.
type AvailabilityView interface {
	Available(providerID string) bool
}

// SecretSource resolves the secret used to call a provider in some scope.
type SecretSource interface {
	Secret(ctx context.Context, providerID string) (string, bool, error)
}

// Scope is what the router needs to pick and call a provider.
type Scope interface {
	AvailabilityView
	SecretSource
}

// ProviderStatus pairs a descriptor with its availability in a scope.
type ProviderStatus struct {
	domain.ProviderDescriptor
	Available bool `json:"available"`
}

type ProviderRouter interface {
	Execute(ctx context.Context, scope Scope, providerID string, task Task) (domain.InteractionRecord, error)
	ExecuteAuto(ctx context.Context, scope Scope, task Task) (domain.InteractionRecord, error)
}

// ProviderCatalog lists the configured providers in registry order.
type ProviderCatalog interface {
	IDs() []string
	AvailableIDs(view AvailabilityView) []string
	Statuses(view AvailabilityView) []ProviderStatus
}
