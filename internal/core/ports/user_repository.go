package ports

import (
	"context"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// UserRepository is the credential store. Implementations must return
// domain.ErrUserExists on a duplicate username or email and
// domain.ErrUserNotFound when no record matches.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// UpdateSecrets applies updates; a nil value leaves the stored secret untouched.
	UpdateSecrets(ctx context.Context, username string, updates map[string]*string) error
	TouchLastLogin(ctx context.Context, username string) error
	IncrementCallCount(ctx context.Context, username, providerID string) error
	Deactivate(ctx context.Context, username string) error
}
