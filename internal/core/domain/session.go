package domain

import "time"

// ExtensionSession is the revocable credential handed to the browser
// extension. Snapshot is computed once at issuance and never changes; Expired
// only ever goes from false to true.
type ExtensionSession struct {
	Token      string
	Username   string
	Snapshot   map[string]bool
	DeviceID   string
	CreatedAt  time.Time
	LastSeenAt time.Time
	Expired    bool
	ExpiredAt  *time.Time
}

// Clone returns a copy that does not share the snapshot map.
func (s *ExtensionSession) Clone() *ExtensionSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Snapshot = make(map[string]bool, len(s.Snapshot))
	for k, v := range s.Snapshot {
		c.Snapshot[k] = v
	}
	if s.ExpiredAt != nil {
		t := *s.ExpiredAt
		c.ExpiredAt = &t
	}
	return &c
}

// IdleFor reports how long the session has been unused at now.
func (s *ExtensionSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastSeenAt)
}
