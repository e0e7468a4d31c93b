package domain

import "time"

// InteractionRecord is one executed task. Records are append-only and ordered
// by completion.
type InteractionRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Username   string    `json:"username,omitempty"`
	ProviderID string    `json:"provider"`
	Task       string    `json:"task"`
	Result     string    `json:"result"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}
