package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

type stubVerifier struct {
	username string
	err      error
	got      string
}

func (s *stubVerifier) Verify(token string) (string, error) {
	s.got = token
	return s.username, s.err
}

func runAuth(t *testing.T, verifier TokenVerifier, header string) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := Auth(verifier)(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	return c, called, err
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected echo.HTTPError, got %v", err)
	return he.Code
}

func TestAuth_MissingHeader(t *testing.T) {
	_, called, err := runAuth(t, &stubVerifier{}, "")
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, httpStatus(t, err))
}

func TestAuth_MalformedHeader(t *testing.T) {
	for _, h := range []string{"Token abc", "Bearer", "Bearer   "} {
		_, called, err := runAuth(t, &stubVerifier{}, h)
		assert.False(t, called, h)
		assert.Equal(t, http.StatusUnauthorized, httpStatus(t, err), h)
	}
}

func TestAuth_VerifierErrorPassesThrough(t *testing.T) {
	_, called, err := runAuth(t, &stubVerifier{err: domain.ErrTokenExpired}, "Bearer tok")
	assert.False(t, called)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestAuth_Success(t *testing.T) {
	v := &stubVerifier{username: "alice"}
	c, called, err := runAuth(t, v, "bearer tok-123")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "tok-123", v.got)
	assert.Equal(t, "alice", c.Get(UsernameKey))
}

type stubSessions struct {
	view *ports.SessionView
	err  error
}

func (s *stubSessions) Validate(_ context.Context, token string) (*ports.SessionView, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := *s.view
	v.Token = token
	return &v, nil
}

func runExtension(t *testing.T, sessions SessionValidator, token string) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/extension/status", nil)
	if token != "" {
		req.Header.Set(ExtensionTokenHeader, token)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := ExtensionSession(sessions)(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	return c, called, err
}

func TestExtensionSession_MissingToken(t *testing.T) {
	_, called, err := runExtension(t, &stubSessions{}, "")
	assert.False(t, called)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestExtensionSession_Rejected(t *testing.T) {
	_, called, err := runExtension(t, &stubSessions{err: domain.ErrUnauthorized}, "revoked")
	assert.False(t, called)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestExtensionSession_Success(t *testing.T) {
	sessions := &stubSessions{view: &ports.SessionView{Username: "alice", Snapshot: map[string]bool{"openai": true}}}
	c, called, err := runExtension(t, sessions, "tok")
	require.NoError(t, err)
	assert.True(t, called)

	view, ok := c.Get(SessionKey).(*ports.SessionView)
	require.True(t, ok)
	assert.Equal(t, "tok", view.Token)
	assert.Equal(t, "alice", c.Get(UsernameKey))
}
