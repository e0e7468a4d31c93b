package ports

import (
	"context"
	"time"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// SessionStore is the table of extension sessions keyed by token. Every read
// returns a private copy reflecting one consistent state of the session.
type SessionStore interface {
	// Insert stores a new session; it returns domain.ErrSessionExists if the
	// token is already present.
	Insert(ctx context.Context, s *domain.ExtensionSession) error
	// Get returns domain.ErrSessionNotFound for an unknown token.
	Get(ctx context.Context, token string) (*domain.ExtensionSession, error)
	// Touch records use of an active session. It is a no-op for expired or
	// unknown tokens.
	Touch(ctx context.Context, token string, at time.Time) error
	// Expire sets the expired flag. Unknown or already expired tokens are a no-op.
	Expire(ctx context.Context, token string, at time.Time) error
	// ExpireUser expires every active session of username and returns how many changed.
	ExpireUser(ctx context.Context, username string, at time.Time) (int, error)
	// Sweep expires sessions idle longer than idleTTL and deletes sessions
	// expired for longer than retention.
	Sweep(ctx context.Context, now time.Time, idleTTL, retention time.Duration) (expired, purged int, err error)
	// CountActive returns the number of sessions not yet expired.
	CountActive(ctx context.Context) (int, error)
}
