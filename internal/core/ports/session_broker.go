package ports

import (
	"context"
	"time"
)

// SessionView is the secret-free view of a live session.
type SessionView struct {
	Token     string
	Username  string
	Snapshot  map[string]bool
	DeviceID  string
	CreatedAt time.Time
}

// Available implements AvailabilityView over the issuance snapshot.
func (v SessionView) Available(providerID string) bool {
	return v.Snapshot[providerID]
}

// IssuedSession is returned by SessionBroker.Issue.
type IssuedSession struct {
	Token              string
	Username           string
	Snapshot           map[string]bool
	AvailableProviders []string
}

type SessionBroker interface {
	Issue(ctx context.Context, username, password, deviceID string) (*IssuedSession, error)
	Validate(ctx context.Context, token string) (*SessionView, error)
	Revoke(ctx context.Context, token string) error
	RevokeUser(ctx context.Context, username string) error
}
