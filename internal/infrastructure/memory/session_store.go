package memory

import (
	"context"
	"sync"
	"time"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// SessionStore is the in-process session table. A single RWMutex guards the
// map and every session in it, so each read observes one whole state and the
// expired flag flips atomically with respect to readers.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ExtensionSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.ExtensionSession)}
}

func (s *SessionStore) Insert(_ context.Context, sess *domain.ExtensionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.Token]; exists {
		return domain.ErrSessionExists
	}
	s.sessions[sess.Token] = sess.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, token string) (*domain.ExtensionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *SessionStore) Touch(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[token]; ok && !sess.Expired && at.After(sess.LastSeenAt) {
		sess.LastSeenAt = at
	}
	return nil
}

func (s *SessionStore) Expire(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[token]; ok {
		expire(sess, at)
	}
	return nil
}

func (s *SessionStore) ExpireUser(_ context.Context, username string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.Username == username && expire(sess, at) {
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) Sweep(_ context.Context, now time.Time, idleTTL, retention time.Duration) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired, purged := 0, 0
	for token, sess := range s.sessions {
		if !sess.Expired && sess.IdleFor(now) > idleTTL && expire(sess, now) {
			expired++
		}
		if sess.Expired && sess.ExpiredAt != nil && now.Sub(*sess.ExpiredAt) > retention {
			delete(s.sessions, token)
			purged++
		}
	}
	return expired, purged, nil
}

func (s *SessionStore) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sess := range s.sessions {
		if !sess.Expired {
			n++
		}
	}
	return n, nil
}

// expire flips the flag once and reports whether it changed.
func expire(sess *domain.ExtensionSession, at time.Time) bool {
	if sess.Expired {
		return false
	}
	sess.Expired = true
	sess.ExpiredAt = &at
	return true
}
