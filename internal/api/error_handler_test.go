package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

func renderError(t *testing.T, err error) (int, errorResponse) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHTTPErrorHandler_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{domain.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{domain.ErrTokenInvalid, http.StatusUnauthorized, "token_invalid"},
		{fmt.Errorf("%w: session expired", domain.ErrUnauthorized), http.StatusUnauthorized, "unauthorized"},
		{domain.ErrSessionNotFound, http.StatusUnauthorized, "unauthorized"},
		{domain.ErrUserExists, http.StatusConflict, "user_exists"},
		{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{fmt.Errorf("%w: openai", domain.ErrNotConfigured), http.StatusNotFound, "not_configured"},
		{domain.ErrNoProviderAvailable, http.StatusServiceUnavailable, "no_provider_available"},
		{domain.ErrMissingTask, http.StatusBadRequest, "missing_task"},
		{domain.ValidationError("username is required"), http.StatusBadRequest, "validation_error"},
		{&domain.UpstreamError{ProviderID: "kimi", Cause: "boom"}, http.StatusBadGateway, "upstream_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, body := renderError(t, tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestHTTPErrorHandler_EchoError(t *testing.T) {
	status, body := renderError(t, echo.NewHTTPError(http.StatusTooManyRequests, "slow down"))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", body.Code)
	assert.Equal(t, "slow down", body.Error)
}

func TestHTTPErrorHandler_UnexpectedErrorIsHidden(t *testing.T) {
	status, body := renderError(t, errors.New("mongo: connection refused at 10.0.0.3"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", body.Code)
	assert.Equal(t, "internal server error", body.Error)
}
