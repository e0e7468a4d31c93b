package ports

import "time"

// Metrics receives domain measurements from the core services.
type Metrics interface {
	LoginAttempt(channel string, ok bool)
	SessionIssued()
	SessionsActive(n int)
	SessionsExpired(reason string, n int)
	ProviderCall(providerID string, success bool, elapsed time.Duration)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) LoginAttempt(string, bool)                {}
func (NopMetrics) SessionIssued()                           {}
func (NopMetrics) SessionsActive(int)                       {}
func (NopMetrics) SessionsExpired(string, int)              {}
func (NopMetrics) ProviderCall(string, bool, time.Duration) {}
