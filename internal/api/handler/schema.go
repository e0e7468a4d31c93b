package handler

import (
	"time"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

// errorResponse documents the error envelope rendered by the API error handler.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Auth ---

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type registerResponse struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// --- Users ---

type profileResponse struct {
	Username   string           `json:"username"`
	Email      string           `json:"email"`
	IsActive   bool             `json:"is_active"`
	CreatedAt  time.Time        `json:"created_at"`
	LastLogin  *time.Time       `json:"last_login"`
	CallCounts map[string]int64 `json:"call_counts"`
}

type providerKeysUpdateResponse struct {
	Updated []string `json:"updated"`
}

// --- Providers / execution ---

type executeRequest struct {
	Task    string         `json:"task"`
	Context map[string]any `json:"context,omitempty"`
}

type extensionExecuteRequest struct {
	Provider string         `json:"provider"`
	Task     string         `json:"task"`
	Context  map[string]any `json:"context,omitempty"`
}

type executeResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Task      string    `json:"task"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

type providersResponse struct {
	Providers []ports.ProviderStatus `json:"providers"`
	Available []string               `json:"available"`
	Total     int                    `json:"total"`
}

// --- Memory ---

type historyResponse struct {
	Records []domain.InteractionRecord `json:"records"`
	Count   int                        `json:"count"`
}

type searchResponse struct {
	Query   string                     `json:"query"`
	Records []domain.InteractionRecord `json:"records"`
	Count   int                        `json:"count"`
}

// --- Extension ---

type extensionLoginRequest struct {
	Username string `json:"username"  validate:"required"`
	Password string `json:"password"  validate:"required"`
	DeviceID string `json:"device_id" validate:"max=128"`
}

type extensionLoginResponse struct {
	Username             string          `json:"username"`
	Token                string          `json:"token"`
	AvailabilitySnapshot map[string]bool `json:"availability_snapshot"`
	AvailableProviders   []string        `json:"available_providers"`
}

type extensionStatusResponse struct {
	Username           string    `json:"username"`
	AvailableProviders []string  `json:"available_providers"`
	CreatedAt          time.Time `json:"created_at"`
	DeviceID           string    `json:"device_id,omitempty"`
}

type extensionProvidersResponse struct {
	Available []string `json:"available"`
	Total     int      `json:"total"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func toExecuteResponse(rec domain.InteractionRecord) executeResponse {
	return executeResponse{
		ID:        rec.ID,
		Provider:  rec.ProviderID,
		Task:      rec.Task,
		Result:    rec.Result,
		Timestamp: rec.Timestamp,
		Success:   rec.Success,
		Error:     rec.Error,
	}
}

func toProfileResponse(p *ports.UserProfile) profileResponse {
	counts := p.CallCounts
	if counts == nil {
		counts = map[string]int64{}
	}
	return profileResponse{
		Username:   p.Username,
		Email:      p.Email,
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt,
		LastLogin:  p.LastLogin,
		CallCounts: counts,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
