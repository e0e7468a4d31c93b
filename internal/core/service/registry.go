package service

import (
	"fmt"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// SecretLookup returns the secret stored for a provider in some scope.
type SecretLookup func(d domain.ProviderDescriptor) (string, bool)

// Registry is the immutable, ordered provider table.
type Registry struct {
	descriptors []domain.ProviderDescriptor
	index       map[string]int
}

// NewRegistry validates and freezes descriptors. Ids must be unique and tiers known.
func NewRegistry(descriptors []domain.ProviderDescriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make([]domain.ProviderDescriptor, 0, len(descriptors)),
		index:       make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.ID == "" || d.SecretName == "" {
			return nil, fmt.Errorf("registry: provider %q: id and secret name are required", d.ID)
		}
		if !d.Tier.Valid() {
			return nil, fmt.Errorf("registry: provider %q: unknown tier %q", d.ID, d.Tier)
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate provider id %q", d.ID)
		}
		r.index[d.ID] = len(r.descriptors)
		r.descriptors = append(r.descriptors, d)
	}
	return r, nil
}

// MustDefaultRegistry builds the registry from domain.DefaultProviders.
func MustDefaultRegistry() *Registry {
	r, err := NewRegistry(domain.DefaultProviders())
	if err != nil {
		panic(err)
	}
	return r
}

// Descriptors returns the providers in declared order.
func (r *Registry) Descriptors() []domain.ProviderDescriptor {
	out := make([]domain.ProviderDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// IDs returns the provider ids in declared order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		ids[i] = d.ID
	}
	return ids
}

func (r *Registry) Lookup(id string) (domain.ProviderDescriptor, bool) {
	i, ok := r.index[id]
	if !ok {
		return domain.ProviderDescriptor{}, false
	}
	return r.descriptors[i], true
}

// IsAvailable reports whether the provider's secret is present and non-empty.
func (r *Registry) IsAvailable(id string, lookup SecretLookup) bool {
	d, ok := r.Lookup(id)
	if !ok {
		return false
	}
	secret, ok := lookup(d)
	return ok && secret != ""
}

// Snapshot evaluates IsAvailable for every provider.
func (r *Registry) Snapshot(lookup SecretLookup) map[string]bool {
	snap := make(map[string]bool, len(r.descriptors))
	for _, d := range r.descriptors {
		snap[d.ID] = r.IsAvailable(d.ID, lookup)
	}
	return snap
}

// AvailableIDs filters ids in registry order by view.
func (r *Registry) AvailableIDs(view ports.AvailabilityView) []string {
	ids := make([]string, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if view.Available(d.ID) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// Statuses lists every provider with its availability in view.
func (r *Registry) Statuses(view ports.AvailabilityView) []ports.ProviderStatus {
	out := make([]ports.ProviderStatus, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = ports.ProviderStatus{ProviderDescriptor: d, Available: view.Available(d.ID)}
	}
	return out
}

// UserSecrets looks secrets up by provider id on a user record.
func UserSecrets(u *domain.User) SecretLookup {
	return func(d domain.ProviderDescriptor) (string, bool) {
		return u.Secret(d.ID)
	}
}

// NamedSecrets looks secrets up by descriptor secret name, e.g. an
// environment lookup.
func NamedSecrets(lookup func(name string) (string, bool)) SecretLookup {
	return func(d domain.ProviderDescriptor) (string, bool) {
		return lookup(d.SecretName)
	}
}
