package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
	"github.com/atlasagent/agent-gateway/pkg/logger"
)

const (
	sessionTokenBytes  = 32
	maxTokenAttempts   = 3
	defaultIdleTTL     = 24 * time.Hour
	defaultRetention   = time.Hour
	defaultSweepPeriod = 5 * time.Minute
)

// Authenticator checks a username/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

// BrokerConfig carries SessionBroker settings.
type BrokerConfig struct {
	// IdleTTL expires sessions unused for longer than this.
	IdleTTL time.Duration
	// Retention is how long expired sessions stay in the table before Sweep deletes them.
	Retention time.Duration
	Metrics   ports.Metrics
}

// SessionBroker issues, validates and revokes extension session tokens.
// Session state lives in the injected store, which owns all locking.
type SessionBroker struct {
	auth      Authenticator
	registry  *Registry
	store     ports.SessionStore
	idleTTL   time.Duration
	retention time.Duration
	metrics   ports.Metrics
	log       zerolog.Logger
	now       func() time.Time
	newToken  func() (string, error)
}

func NewSessionBroker(auth Authenticator, registry *Registry, store ports.SessionStore, cfg BrokerConfig, log zerolog.Logger) *SessionBroker {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Metrics == nil {
		cfg.Metrics = ports.NopMetrics{}
	}
	return &SessionBroker{
		auth:      auth,
		registry:  registry,
		store:     store,
		idleTTL:   cfg.IdleTTL,
		retention: cfg.Retention,
		metrics:   cfg.Metrics,
		log:       log,
		now:       time.Now,
		newToken:  newSessionToken,
	}
}

// Issue authenticates the user and creates a session whose snapshot records
// which providers the user holds a secret for at this moment.
func (b *SessionBroker) Issue(ctx context.Context, username, password, deviceID string) (*ports.IssuedSession, error) {
	user, err := b.auth.Authenticate(ctx, username, password)
	b.metrics.LoginAttempt("extension", err == nil)
	if err != nil {
		return nil, err
	}

	snapshot := b.registry.Snapshot(UserSecrets(user))
	now := b.now().UTC()

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := b.newToken()
		if err != nil {
			return nil, fmt.Errorf("issue session: %w", err)
		}
		sess := &domain.ExtensionSession{
			Token:      token,
			Username:   user.Username,
			Snapshot:   snapshot,
			DeviceID:   deviceID,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		err = b.store.Insert(ctx, sess)
		if errors.Is(err, domain.ErrSessionExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("issue session: %w", err)
		}

		b.metrics.SessionIssued()
		b.log.Info().
			Str("username", user.Username).
			Str("session", logger.Fingerprint(token)).
			Str("device_id", deviceID).
			Msg("extension session issued")

		view := ports.SessionView{Snapshot: snapshot}
		return &ports.IssuedSession{
			Token:              token,
			Username:           user.Username,
			Snapshot:           cloneSnapshot(snapshot),
			AvailableProviders: b.registry.AvailableIDs(view),
		}, nil
	}
	return nil, fmt.Errorf("issue session: %w", domain.ErrSessionExists)
}

// Validate resolves a token to its session. Unknown, revoked and idle
// sessions all fail with ErrUnauthorized.
func (b *SessionBroker) Validate(ctx context.Context, token string) (*ports.SessionView, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	sess, err := b.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if sess.Expired {
		return nil, fmt.Errorf("%w: session expired", domain.ErrUnauthorized)
	}

	now := b.now().UTC()
	if sess.IdleFor(now) > b.idleTTL {
		if err := b.store.Expire(ctx, token, now); err != nil {
			return nil, fmt.Errorf("expire idle session: %w", err)
		}
		b.metrics.SessionsExpired("idle", 1)
		return nil, fmt.Errorf("%w: session expired", domain.ErrUnauthorized)
	}

	if err := b.store.Touch(ctx, token, now); err != nil {
		b.log.Warn().Err(err).Str("session", logger.Fingerprint(token)).Msg("failed to touch session")
	}

	return &ports.SessionView{
		Token:     sess.Token,
		Username:  sess.Username,
		Snapshot:  sess.Snapshot,
		DeviceID:  sess.DeviceID,
		CreatedAt: sess.CreatedAt,
	}, nil
}

// Revoke expires a session. Revoking an unknown or expired token is a no-op.
func (b *SessionBroker) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := b.store.Expire(ctx, token, b.now().UTC()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	b.log.Info().Str("session", logger.Fingerprint(token)).Msg("extension session revoked")
	return nil
}

// RevokeUser expires every session held by username.
func (b *SessionBroker) RevokeUser(ctx context.Context, username string) error {
	n, err := b.store.ExpireUser(ctx, username, b.now().UTC())
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	if n > 0 {
		b.metrics.SessionsExpired("deactivated", n)
		b.log.Info().Str("username", username).Int("sessions", n).Msg("user sessions revoked")
	}
	return nil
}

// Sweep expires idle sessions and deletes those past the retention window.
func (b *SessionBroker) Sweep(ctx context.Context) error {
	expired, purged, err := b.store.Sweep(ctx, b.now().UTC(), b.idleTTL, b.retention)
	if err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}
	if expired > 0 {
		b.metrics.SessionsExpired("idle", expired)
	}
	if active, err := b.store.CountActive(ctx); err == nil {
		b.metrics.SessionsActive(active)
	}
	if expired > 0 || purged > 0 {
		b.log.Debug().Int("expired", expired).Int("purged", purged).Msg("session sweep")
	}
	return nil
}

// Run sweeps every interval until ctx is cancelled.
func (b *SessionBroker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultSweepPeriod
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Sweep(ctx); err != nil {
				b.log.Error().Err(err).Msg("session sweep failed")
			}
		}
	}
}

// newSessionToken returns 256 random bits, base64url encoded.
func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func cloneSnapshot(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
