package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasagent/agent-gateway/internal/api/handler"
	"github.com/atlasagent/agent-gateway/internal/api/middleware"
	"github.com/atlasagent/agent-gateway/internal/core/service"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/llm"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/memory"
)

// newChatUpstream answers every chat completion with reply and records the
// bearer keys it saw.
func newChatUpstream(t *testing.T, reply string) (*httptest.Server, *[]string) {
	t.Helper()
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &keys
}

type testServer struct {
	e        *echo.Echo
	upstream *[]string
}

func newTestServer(t *testing.T, health ...handler.HealthCheck) *testServer {
	t.Helper()
	log := zerolog.Nop()

	upstream, keys := newChatUpstream(t, "canned answer")
	clients, err := llm.BuildClients(map[string]llm.Endpoint{
		"perplexity": {BaseURL: upstream.URL + "/", Model: "sonar"},
		"openai":     {BaseURL: upstream.URL + "/", Model: "gpt-4o-mini"},
	}, upstream.Client())
	require.NoError(t, err)

	registry := service.MustDefaultRegistry()
	users := memory.NewUserRepository()

	auth := service.NewAuthService(users, registry, service.AuthConfig{JWTSecret: "router-test"}, log)
	broker := service.NewSessionBroker(auth, registry, memory.NewSessionStore(), service.BrokerConfig{}, log)
	auth.SetSessionRevoker(broker)

	router := service.NewProviderRouter(registry, clients, 0, nil, log)
	global := service.NewGlobalScope(registry, func(string) (string, bool) { return "", false })
	exec := service.NewExecutionService(router, registry, global, users, memory.NewInteractionLog(nil), log)

	e := NewRouter(Dependencies{
		Auth:       auth,
		Broker:     broker,
		Exec:       exec,
		Catalog:    registry,
		Health:     health,
		Registerer: prometheus.NewRegistry(),
		Log:        log,
	})
	return &testServer{e: e, upstream: keys}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_ExtensionFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "correct-horse",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "alice", "password": "correct-horse",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[map[string]any](t, rec)
	bearer := map[string]string{echo.HeaderAuthorization: "Bearer " + login["access_token"].(string)}

	rec = s.do(t, http.MethodPut, "/v1/users/me/provider-keys", map[string]any{
		"perplexity": "pplx-alice-secret-key",
	}, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"perplexity"}, decode[map[string]any](t, rec)["updated"])

	rec = s.do(t, http.MethodGet, "/v1/users/me/provider-keys", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pplx-alice-secret-key")

	rec = s.do(t, http.MethodPost, "/api/extension/login", map[string]string{
		"username": "alice", "password": "correct-horse", "device_id": "chrome",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode[map[string]any](t, rec)
	assert.Equal(t, []any{"perplexity"}, session["available_providers"])
	ext := map[string]string{middleware.ExtensionTokenHeader: session["token"].(string)}

	rec = s.do(t, http.MethodPost, "/api/extension/execute", map[string]any{
		"provider": "openai", "task": "hello",
	}, ext)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_configured", decode[map[string]any](t, rec)["code"])
	assert.Empty(t, *s.upstream)

	rec = s.do(t, http.MethodPost, "/api/extension/execute", map[string]any{
		"provider": "perplexity", "task": "hello",
	}, ext)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[map[string]any](t, rec)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "canned answer", result["result"])
	assert.Equal(t, []string{"Bearer pplx-alice-secret-key"}, *s.upstream)

	rec = s.do(t, http.MethodGet, "/v1/memory/history?limit=1", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = s.do(t, http.MethodGet, "/v1/users/me", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	counts := decode[map[string]any](t, rec)["call_counts"].(map[string]any)
	assert.EqualValues(t, 1, counts["perplexity"])

	rec = s.do(t, http.MethodPost, "/api/extension/logout", nil, ext)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/extension/status", nil, ext)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[map[string]any](t, rec)["code"])
}

func TestRouter_DeactivateDropsSessions(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "correct-horse",
	}, nil)
	login := decode[map[string]any](t, s.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "bob", "password": "correct-horse",
	}, nil))
	session := decode[map[string]any](t, s.do(t, http.MethodPost, "/api/extension/login", map[string]string{
		"username": "bob", "password": "correct-horse",
	}, nil))

	rec := s.do(t, http.MethodDelete, "/v1/users/me", nil, map[string]string{
		echo.HeaderAuthorization: "Bearer " + login["access_token"].(string),
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/extension/status", nil, map[string]string{
		middleware.ExtensionTokenHeader: session["token"].(string),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/extension/login", map[string]string{
		"username": "bob", "password": "correct-horse",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decode[map[string]any](t, rec)["code"])
}

func TestRouter_RejectsMissingCredentials(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/providers", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/providers", nil, map[string]string{echo.HeaderAuthorization: "Bearer junk"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_invalid", decode[map[string]any](t, rec)["code"])

	rec = s.do(t, http.MethodPost, "/api/extension/execute", map[string]string{"task": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_DirectExecuteWithoutGlobalSecret(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "carol", "email": "carol@example.com", "password": "correct-horse",
	}, nil)
	login := decode[map[string]any](t, s.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "carol", "password": "correct-horse",
	}, nil))
	bearer := map[string]string{echo.HeaderAuthorization: "Bearer " + login["access_token"].(string)}

	rec := s.do(t, http.MethodPost, "/v1/agent/openai/execute", map[string]string{"task": "hi"}, bearer)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/agent/auto/execute", map[string]string{"task": "hi"}, bearer)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no_provider_available", decode[map[string]any](t, rec)["code"])

	rec = s.do(t, http.MethodGet, "/v1/providers", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 9, body["total"])
	assert.Empty(t, body["available"])
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, handler.HealthCheck{Name: "db", Ping: func(context.Context) error {
		return errors.New("down")
	}})

	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
