package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

func newTestRouter(clients map[string]ports.ProviderClient, metrics ports.Metrics) *ProviderRouter {
	r := NewProviderRouter(MustDefaultRegistry(), clients, time.Second, metrics, zerolog.Nop())
	r.now = newClock().Now
	r.newID = func() string { return "rec-1" }
	return r
}

func TestProviderRouter_Execute(t *testing.T) {
	pplx := &fakeClient{reply: "canned answer"}
	metrics := newRecordingMetrics()
	r := newTestRouter(map[string]ports.ProviderClient{"perplexity": pplx}, metrics)

	task := ports.Task{Text: "summarise", Context: map[string]any{"url": "https://example.com"}}
	rec, err := r.Execute(context.Background(), staticScope{"perplexity": "pplx-key"}, "perplexity", task)
	require.NoError(t, err)

	assert.True(t, rec.Success)
	assert.Equal(t, "canned answer", rec.Result)
	assert.Equal(t, "perplexity", rec.ProviderID)
	assert.Equal(t, "summarise", rec.Task)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Empty(t, rec.Error)
	assert.False(t, rec.Timestamp.IsZero())

	assert.Equal(t, []string{"pplx-key"}, pplx.secrets)
	assert.Equal(t, task, pplx.tasks[0])
	assert.Equal(t, []providerCall{{"perplexity", true}}, metrics.calls)
}

func TestProviderRouter_NotConfiguredMakesNoCall(t *testing.T) {
	openai := &fakeClient{reply: "x"}
	r := newTestRouter(map[string]ports.ProviderClient{"openai": openai}, nil)
	scope := staticScope{"perplexity": "pplx-key"}

	_, err := r.Execute(context.Background(), scope, "openai", ports.Task{Text: "t"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	_, err = r.Execute(context.Background(), scope, "nope", ports.Task{Text: "t"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	// available in scope but no upstream client configured
	_, err = r.Execute(context.Background(), scope, "perplexity", ports.Task{Text: "t"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	assert.Zero(t, openai.calls())
}

func TestProviderRouter_UpstreamFailureIsARecord(t *testing.T) {
	metrics := newRecordingMetrics()
	r := newTestRouter(map[string]ports.ProviderClient{
		"claude": &fakeClient{err: errors.New("status 500: overloaded")},
	}, metrics)

	rec, err := r.Execute(context.Background(), staticScope{"claude": "sk-ant-secret"}, "claude", ports.Task{Text: "t"})
	require.NoError(t, err)

	assert.False(t, rec.Success)
	assert.Empty(t, rec.Result)
	assert.Equal(t, "provider claude: status 500: overloaded", rec.Error)
	assert.NotContains(t, rec.Error, "sk-ant-secret")
	assert.Equal(t, []providerCall{{"claude", false}}, metrics.calls)
}

func TestProviderRouter_Timeout(t *testing.T) {
	r := NewProviderRouter(MustDefaultRegistry(), map[string]ports.ProviderClient{
		"gemini": &fakeClient{reply: "late", delay: time.Second},
	}, 20*time.Millisecond, nil, zerolog.Nop())

	rec, err := r.Execute(context.Background(), staticScope{"gemini": "g"}, "gemini", ports.Task{Text: "t"})
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Equal(t, "provider gemini: timeout after 20ms", rec.Error)
}

// secretlessScope claims availability but holds no secret, as when a secret is
// removed after a session was issued.
type secretlessScope struct{ err error }

func (secretlessScope) Available(string) bool { return true }

func (s secretlessScope) Secret(context.Context, string) (string, bool, error) {
	return "", false, s.err
}

func TestProviderRouter_SecretGoneAfterSnapshot(t *testing.T) {
	client := &fakeClient{reply: "x"}
	r := newTestRouter(map[string]ports.ProviderClient{"openai": client}, nil)

	rec, err := r.Execute(context.Background(), secretlessScope{}, "openai", ports.Task{Text: "t"})
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Equal(t, "provider openai: credential no longer present", rec.Error)

	rec, err = r.Execute(context.Background(), secretlessScope{err: errors.New("db down")}, "openai", ports.Task{Text: "t"})
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Equal(t, "provider openai: credential lookup failed", rec.Error)

	assert.Zero(t, client.calls())
}

func TestProviderRouter_ExecuteAutoDeterministic(t *testing.T) {
	clients := map[string]ports.ProviderClient{
		"claude":   &fakeClient{reply: "from claude"},
		"deepseek": &fakeClient{reply: "from deepseek"},
		"kimi":     &fakeClient{reply: "from kimi"},
	}
	r := newTestRouter(clients, nil)
	scope := staticScope{"kimi": "k", "deepseek": "d", "claude": "c", "perplexity": "p"}

	for i := 0; i < 5; i++ {
		rec, err := r.ExecuteAuto(context.Background(), scope, ports.Task{Text: "t"})
		require.NoError(t, err)
		// perplexity is available but has no client, so claude is first.
		assert.Equal(t, "claude", rec.ProviderID)
		assert.Equal(t, "from claude", rec.Result)
	}
}

func TestProviderRouter_ExecuteAutoNoneAvailable(t *testing.T) {
	r := newTestRouter(map[string]ports.ProviderClient{"openai": &fakeClient{}}, nil)

	_, err := r.ExecuteAuto(context.Background(), staticScope{}, ports.Task{Text: "t"})
	assert.ErrorIs(t, err, domain.ErrNoProviderAvailable)

	_, err = r.ExecuteAuto(context.Background(), staticScope{"grok": "x"}, ports.Task{Text: "t"})
	assert.ErrorIs(t, err, domain.ErrNoProviderAvailable)
}

func TestProviderRouter_ExecuteAutoDoesNotFallBackOnFailure(t *testing.T) {
	second := &fakeClient{reply: "ok"}
	r := newTestRouter(map[string]ports.ProviderClient{
		"perplexity": &fakeClient{err: errors.New("boom")},
		"openai":     second,
	}, nil)

	rec, err := r.ExecuteAuto(context.Background(), staticScope{"perplexity": "p", "openai": "o"}, ports.Task{Text: "t"})
	require.NoError(t, err)
	assert.Equal(t, "perplexity", rec.ProviderID)
	assert.False(t, rec.Success)
	assert.Zero(t, second.calls())
}
