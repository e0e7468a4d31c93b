package service

import (
	"context"
	"sync"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// GlobalScope holds the process-wide provider secrets used by the direct API.
// Secrets are read once at construction.
type GlobalScope struct {
	secrets map[string]string
}

// NewGlobalScope captures the secrets of every registry provider from lookup.
func NewGlobalScope(reg *Registry, lookup func(name string) (string, bool)) *GlobalScope {
	byName := NamedSecrets(lookup)
	secrets := make(map[string]string)
	for _, d := range reg.Descriptors() {
		if s, ok := byName(d); ok && s != "" {
			secrets[d.ID] = s
		}
	}
	return &GlobalScope{secrets: secrets}
}

func (g *GlobalScope) Available(providerID string) bool {
	return g.secrets[providerID] != ""
}

func (g *GlobalScope) Secret(_ context.Context, providerID string) (string, bool, error) {
	s, ok := g.secrets[providerID]
	return s, ok, nil
}

// sessionScope answers availability from the issuance snapshot and loads the
// user's secrets at most once, on the first call that needs one.
type sessionScope struct {
	view  ports.SessionView
	users ports.UserRepository

	once sync.Once
	user *domain.User
	err  error
}

func newSessionScope(view ports.SessionView, users ports.UserRepository) *sessionScope {
	return &sessionScope{view: view, users: users}
}

func (s *sessionScope) Available(providerID string) bool {
	return s.view.Available(providerID)
}

func (s *sessionScope) Secret(ctx context.Context, providerID string) (string, bool, error) {
	s.once.Do(func() {
		s.user, s.err = s.users.FindByUsername(ctx, s.view.Username)
	})
	if s.err != nil {
		return "", false, s.err
	}
	secret, ok := s.user.Secret(providerID)
	return secret, ok && secret != "", nil
}
