package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/atlasagent/agent-gateway/internal/api/middleware"
	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

type stubAuthService struct {
	registerFn     func(ctx context.Context, username, email, password string) (*domain.User, error)
	loginFn        func(ctx context.Context, username, password string) (*ports.IdentityToken, error)
	profileFn      func(ctx context.Context, username string) (*ports.UserProfile, error)
	deactivateFn   func(ctx context.Context, username string) error
	updateKeysFn   func(ctx context.Context, username string, updates map[string]*string) ([]string, error)
	providerKeysFn func(ctx context.Context, username string) (map[string]*string, error)
}

func (s *stubAuthService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	return s.registerFn(ctx, username, email, password)
}

func (s *stubAuthService) Login(ctx context.Context, username, password string) (*ports.IdentityToken, error) {
	return s.loginFn(ctx, username, password)
}

func (s *stubAuthService) Verify(string) (string, error) { return "", domain.ErrTokenInvalid }

func (s *stubAuthService) Authenticate(context.Context, string, string) (*domain.User, error) {
	return nil, domain.ErrInvalidCredentials
}

func (s *stubAuthService) Profile(ctx context.Context, username string) (*ports.UserProfile, error) {
	return s.profileFn(ctx, username)
}

func (s *stubAuthService) Deactivate(ctx context.Context, username string) error {
	return s.deactivateFn(ctx, username)
}

func (s *stubAuthService) UpdateProviderKeys(ctx context.Context, username string, updates map[string]*string) ([]string, error) {
	return s.updateKeysFn(ctx, username, updates)
}

func (s *stubAuthService) ProviderKeys(ctx context.Context, username string) (map[string]*string, error) {
	return s.providerKeysFn(ctx, username)
}

type stubBroker struct {
	issueFn  func(ctx context.Context, username, password, deviceID string) (*ports.IssuedSession, error)
	revoked  []string
	revokeFn func(token string) error
}

func (b *stubBroker) Issue(ctx context.Context, username, password, deviceID string) (*ports.IssuedSession, error) {
	return b.issueFn(ctx, username, password, deviceID)
}

func (b *stubBroker) Validate(context.Context, string) (*ports.SessionView, error) {
	return nil, domain.ErrUnauthorized
}

func (b *stubBroker) Revoke(_ context.Context, token string) error {
	b.revoked = append(b.revoked, token)
	if b.revokeFn != nil {
		return b.revokeFn(token)
	}
	return nil
}

func (b *stubBroker) RevokeUser(context.Context, string) error { return nil }

type stubExec struct {
	directFn  func(ctx context.Context, in ports.ExecuteInput) (domain.InteractionRecord, error)
	sessionFn func(ctx context.Context, s ports.SessionView, in ports.ExecuteInput) (domain.InteractionRecord, error)
	providers []ports.ProviderStatus
	history   []domain.InteractionRecord
	gotLimit  int
	gotQuery  string
}

func (s *stubExec) ExecuteDirect(ctx context.Context, in ports.ExecuteInput) (domain.InteractionRecord, error) {
	return s.directFn(ctx, in)
}

func (s *stubExec) ExecuteSession(ctx context.Context, view ports.SessionView, in ports.ExecuteInput) (domain.InteractionRecord, error) {
	return s.sessionFn(ctx, view, in)
}

func (s *stubExec) GlobalProviders() []ports.ProviderStatus { return s.providers }

func (s *stubExec) History(limit int) []domain.InteractionRecord {
	s.gotLimit = limit
	if limit <= 0 {
		return nil
	}
	if limit > len(s.history) {
		limit = len(s.history)
	}
	return s.history[len(s.history)-limit:]
}

func (s *stubExec) Search(query string) []domain.InteractionRecord {
	s.gotQuery = query
	return nil
}

type stubCatalog struct {
	ids []string
}

func (c stubCatalog) IDs() []string { return c.ids }

func (c stubCatalog) AvailableIDs(view ports.AvailabilityView) []string {
	var out []string
	for _, id := range c.ids {
		if view.Available(id) {
			out = append(out, id)
		}
	}
	return out
}

func (c stubCatalog) Statuses(view ports.AvailabilityView) []ports.ProviderStatus {
	out := make([]ports.ProviderStatus, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, ports.ProviderStatus{
			ProviderDescriptor: domain.ProviderDescriptor{ID: id},
			Available:          view.Available(id),
		})
	}
	return out
}

// newContext builds an echo context with the validator installed. A non-empty
// username is injected as the Auth middleware would.
func newContext(method, target, body, username string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if username != "" {
		c.Set(middleware.UsernameKey, username)
	}
	return c, rec
}

func withSession(c echo.Context, view *ports.SessionView) {
	c.Set(middleware.SessionKey, view)
	c.Set(middleware.UsernameKey, view.Username)
}
