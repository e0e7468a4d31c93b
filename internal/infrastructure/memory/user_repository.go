// Package memory holds process-local implementations of the core stores.
// State does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// UserRepository keeps users in a mutex-guarded map keyed by username.
type UserRepository struct {
	mu      sync.RWMutex
	users   map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return nil, domain.ErrUserExists
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return nil, domain.ErrUserExists
	}
	stored := user.Clone()
	r.users[stored.Username] = stored
	r.byEmail[stored.Email] = stored.Username
	return stored.Clone(), nil
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	username, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.users[username].Clone(), nil
}

func (r *UserRepository) UpdateSecrets(_ context.Context, username string, updates map[string]*string) error {
	return r.mutate(username, func(u *domain.User) {
		for id, v := range updates {
			if v != nil {
				u.Secrets[id] = *v
			}
		}
	})
}

func (r *UserRepository) TouchLastLogin(_ context.Context, username string) error {
	now := r.now().UTC()
	return r.mutate(username, func(u *domain.User) {
		u.LastLogin = &now
	})
}

func (r *UserRepository) IncrementCallCount(_ context.Context, username, providerID string) error {
	return r.mutate(username, func(u *domain.User) {
		u.CallCounts[providerID]++
	})
}

func (r *UserRepository) Deactivate(_ context.Context, username string) error {
	return r.mutate(username, func(u *domain.User) {
		u.IsActive = false
	})
}

func (r *UserRepository) mutate(username string, fn func(u *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.Secrets == nil {
		u.Secrets = map[string]string{}
	}
	if u.CallCounts == nil {
		u.CallCounts = map[string]int64{}
	}
	fn(u)
	return nil
}
