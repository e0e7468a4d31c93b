package domain

import "time"

// User is the identity and secret holder. Username is immutable after
// creation; accounts are deactivated, never hard-deleted.
type User struct {
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time

	// Secrets maps provider id to the stored secret. A missing key means no
	// secret was ever set; an empty value is a stored empty string.
	Secrets map[string]string
	// CallCounts maps provider id to the number of successful calls.
	CallCounts map[string]int64
}

// Secret returns the stored secret for providerID and whether one is present.
func (u *User) Secret(providerID string) (string, bool) {
	if u == nil || u.Secrets == nil {
		return "", false
	}
	s, ok := u.Secrets[providerID]
	return s, ok
}

// Clone returns a deep copy so callers never share the secret maps.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	c.Secrets = make(map[string]string, len(u.Secrets))
	for k, v := range u.Secrets {
		c.Secrets[k] = v
	}
	c.CallCounts = make(map[string]int64, len(u.CallCounts))
	for k, v := range u.CallCounts {
		c.CallCounts[k] = v
	}
	return &c
}

// MaskSecret elides the middle of a secret: long values keep a 10 character
// prefix and a 5 character suffix, short ones collapse to "***".
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if r := []rune(secret); len(r) > 15 {
		return string(r[:10]) + "..." + string(r[len(r)-5:])
	}
	return "***"
}
