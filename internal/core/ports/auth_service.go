package ports

import (
	"context"
	"time"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// IdentityToken is a signed, stateless proof of authentication.
type IdentityToken struct {
	AccessToken string
	TokenType   string
	Username    string
	ExpiresAt   time.Time
}

// UserProfile is the secret-free view of a user.
type UserProfile struct {
	Username   string
	Email      string
	IsActive   bool
	CreatedAt  time.Time
	LastLogin  *time.Time
	CallCounts map[string]int64
}

type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*IdentityToken, error)
	Verify(token string) (string, error)
	// Authenticate checks a username/password pair without issuing a token.
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Profile(ctx context.Context, username string) (*UserProfile, error)
	Deactivate(ctx context.Context, username string) error
	UpdateProviderKeys(ctx context.Context, username string, updates map[string]*string) ([]string, error)
	ProviderKeys(ctx context.Context, username string) (map[string]*string, error)
}
