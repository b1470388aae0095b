package auth

import (
	"context"
	"sync"
	"time"
)

// CredentialStore keeps the long-lived renewal credential outside process
// memory. It holds at most one value; Set overwrites.
type CredentialStore interface {
	// Get returns the stored credential. ok is false when nothing is stored
	// or the stored value expired.
	Get(ctx context.Context) (value string, ok bool, err error)
	Set(ctx context.Context, value string) error
	Clear(ctx context.Context) error
}

// RenewalCookie describes how the renewal credential is persisted. The
// attributes mirror a first-party, transport-secured site cookie.
type RenewalCookie struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	MaxAge   time.Duration `json:"max_age"`
	SameSite string        `json:"same_site"`
	Secure   bool          `json:"secure"`
	HTTPOnly bool          `json:"http_only"`
}

const (
	DefaultRenewalCookieName   = "refresh_token"
	DefaultRenewalCookieMaxAge = 30 * 24 * time.Hour
)

// DefaultRenewalCookie is scoped to the site root, lives 30 days, is never
// sent cross site and only travels over TLS.
func DefaultRenewalCookie() RenewalCookie {
	return RenewalCookie{
		Name:     DefaultRenewalCookieName,
		Path:     "/",
		MaxAge:   DefaultRenewalCookieMaxAge,
		SameSite: "Strict",
		Secure:   true,
		HTTPOnly: true,
	}
}

// ExpiresAt returns when a value written at t stops being readable.
func (c RenewalCookie) ExpiresAt(t time.Time) time.Time {
	if c.MaxAge <= 0 {
		return t.Add(DefaultRenewalCookieMaxAge)
	}
	return t.Add(c.MaxAge)
}

// MemoryCredentialStore keeps the renewal credential in memory. It does not
// survive a restart and is meant for tests and ephemeral sessions.
type MemoryCredentialStore struct {
	mu        sync.Mutex
	cookie    RenewalCookie
	value     string
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryCredentialStore creates an empty store honoring cookie.MaxAge.
func NewMemoryCredentialStore(cookie RenewalCookie) *MemoryCredentialStore {
	return &MemoryCredentialStore{
		cookie: cookie,
		now:    time.Now,
	}
}

// WithClock overrides the time source used for expiry checks.
func (s *MemoryCredentialStore) WithClock(now func() time.Time) *MemoryCredentialStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryCredentialStore) Get(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.value == "" {
		return "", false, nil
	}

	if !s.now().Before(s.expiresAt) {
		s.value = ""
		return "", false, nil
	}

	return s.value, true, nil
}

func (s *MemoryCredentialStore) Set(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == "" {
		s.value = ""
		return nil
	}

	s.value = value
	s.expiresAt = s.cookie.ExpiresAt(s.now())
	return nil
}

func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	return nil
}
