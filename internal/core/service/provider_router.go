package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

const defaultProviderTimeout = 60 * time.Second

// ProviderRouter resolves provider ids against an availability scope and
// invokes the matching upstream client. Upstream failures come back as
// records with Success=false; only resolution failures are errors.
//
// Calls are never retried here. A retry policy belongs in a layer above.
type ProviderRouter struct {
	registry *Registry
	clients  map[string]ports.ProviderClient
	timeout  time.Duration
	metrics  ports.Metrics
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

func NewProviderRouter(registry *Registry, clients map[string]ports.ProviderClient, timeout time.Duration, metrics ports.Metrics, log zerolog.Logger) *ProviderRouter {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &ProviderRouter{
		registry: registry,
		clients:  clients,
		timeout:  timeout,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Execute runs task on providerID. It fails with ErrNotConfigured before any
// network call if the provider is unknown or unavailable in scope.
func (r *ProviderRouter) Execute(ctx context.Context, scope ports.Scope, providerID string, task ports.Task) (domain.InteractionRecord, error) {
	if _, ok := r.registry.Lookup(providerID); !ok {
		return domain.InteractionRecord{}, fmt.Errorf("%w: unknown provider %q", domain.ErrNotConfigured, providerID)
	}
	if !scope.Available(providerID) {
		return domain.InteractionRecord{}, fmt.Errorf("%w: %s", domain.ErrNotConfigured, providerID)
	}
	client, ok := r.clients[providerID]
	if !ok {
		return domain.InteractionRecord{}, fmt.Errorf("%w: no client for %s", domain.ErrNotConfigured, providerID)
	}
	return r.invoke(ctx, scope, providerID, client, task), nil
}

// ExecuteAuto runs task on the first provider, in registry order, that is
// available in scope.
func (r *ProviderRouter) ExecuteAuto(ctx context.Context, scope ports.Scope, task ports.Task) (domain.InteractionRecord, error) {
	for _, d := range r.registry.descriptors {
		if !scope.Available(d.ID) {
			continue
		}
		if _, ok := r.clients[d.ID]; !ok {
			continue
		}
		return r.Execute(ctx, scope, d.ID, task)
	}
	return domain.InteractionRecord{}, domain.ErrNoProviderAvailable
}

func (r *ProviderRouter) invoke(ctx context.Context, scope ports.Scope, providerID string, client ports.ProviderClient, task ports.Task) domain.InteractionRecord {
	start := time.Now()
	rec := domain.InteractionRecord{
		ID:         r.newID(),
		ProviderID: providerID,
		Task:       task.Text,
	}

	output, err := r.call(ctx, scope, providerID, client, task)
	rec.Timestamp = r.now().UTC()
	elapsed := time.Since(start)

	if err != nil {
		var upErr *domain.UpstreamError
		if !errors.As(err, &upErr) {
			upErr = &domain.UpstreamError{ProviderID: providerID, Cause: err.Error()}
		}
		rec.Error = upErr.Error()
		r.metrics.ProviderCall(providerID, false, elapsed)
		r.log.Warn().
			Str("provider", providerID).
			Dur("elapsed", elapsed).
			Str("cause", upErr.Cause).
			Msg("provider call failed")
		return rec
	}

	rec.Result = output
	rec.Success = true
	r.metrics.ProviderCall(providerID, true, elapsed)
	r.log.Debug().Str("provider", providerID).Dur("elapsed", elapsed).Msg("provider call succeeded")
	return rec
}

func (r *ProviderRouter) call(ctx context.Context, scope ports.Scope, providerID string, client ports.ProviderClient, task ports.Task) (string, error) {
	secret, ok, err := scope.Secret(ctx, providerID)
	if err != nil {
		return "", &domain.UpstreamError{ProviderID: providerID, Cause: "credential lookup failed"}
	}
	if !ok {
		return "", &domain.UpstreamError{ProviderID: providerID, Cause: "credential no longer present"}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := client.Invoke(callCtx, secret, task)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", &domain.UpstreamError{ProviderID: providerID, Cause: fmt.Sprintf("timeout after %s", r.timeout)}
		}
		return "", err
	}
	return output, nil
}
