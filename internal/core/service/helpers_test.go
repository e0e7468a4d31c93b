package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/atlasagent/agent-gateway/internal/core/ports"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/memory"
)

const testJWTSecret = "test-secret"

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeClient answers every call with reply, or err, and records the secrets it was given.
type fakeClient struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	secrets []string
	tasks   []ports.Task
}

func (c *fakeClient) Invoke(ctx context.Context, secret string, task ports.Task) (string, error) {
	c.mu.Lock()
	c.secrets = append(c.secrets, secret)
	c.tasks = append(c.tasks, task)
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.secrets)
}

type providerCall struct {
	provider string
	success  bool
}

// recordingMetrics keeps what the services report.
type recordingMetrics struct {
	ports.NopMetrics

	mu      sync.Mutex
	logins  map[string][]bool
	issued  int
	expired map[string]int
	calls   []providerCall
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{logins: map[string][]bool{}, expired: map[string]int{}}
}

func (m *recordingMetrics) LoginAttempt(channel string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[channel] = append(m.logins[channel], ok)
}

func (m *recordingMetrics) SessionIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
}

func (m *recordingMetrics) SessionsExpired(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired[reason] += n
}

func (m *recordingMetrics) ProviderCall(providerID string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, providerCall{providerID, success})
}

// staticScope is a fixed availability view with fixed secrets.
type staticScope map[string]string

func (s staticScope) Available(id string) bool { return s[id] != "" }

func (s staticScope) Secret(_ context.Context, id string) (string, bool, error) {
	v, ok := s[id]
	return v, ok, nil
}

type fixture struct {
	registry *Registry
	users    *memory.UserRepository
	sessions *memory.SessionStore
	auth     *AuthService
	broker   *SessionBroker
	metrics  *recordingMetrics
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		registry: MustDefaultRegistry(),
		users:    memory.NewUserRepository(),
		sessions: memory.NewSessionStore(),
		metrics:  newRecordingMetrics(),
		clock:    newClock(),
	}
	f.auth = NewAuthService(f.users, f.registry, AuthConfig{
		JWTSecret: testJWTSecret,
		TokenTTL:  time.Hour,
		Metrics:   f.metrics,
	}, zerolog.Nop())
	f.auth.now = f.clock.Now

	f.broker = NewSessionBroker(f.auth, f.registry, f.sessions, BrokerConfig{
		IdleTTL:   time.Hour,
		Retention: 10 * time.Minute,
		Metrics:   f.metrics,
	}, zerolog.Nop())
	f.broker.now = f.clock.Now
	f.auth.SetSessionRevoker(f.broker)
	return f
}

// register creates username with password "pw-"+username and stores secrets.
func (f *fixture) register(t *testing.T, username string, secrets map[string]string) {
	t.Helper()
	ctx := context.Background()

	_, err := f.auth.Register(ctx, username, username+"@example.com", "pw-"+username)
	require.NoError(t, err)

	if len(secrets) == 0 {
		return
	}
	updates := make(map[string]*string, len(secrets))
	for id, v := range secrets {
		updates[id] = &v
	}
	require.NoError(t, f.users.UpdateSecrets(ctx, username, updates))
}
