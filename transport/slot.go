package transport

import "sync"

// BearerSlot holds the access credential attached to outbound calls. It is
// the session store's credential sink.
type BearerSlot struct {
	mu    sync.RWMutex
	token string
}

func (s *BearerSlot) SetAccessCredential(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *BearerSlot) ClearAccessCredential() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Token returns the current credential, if any.
func (s *BearerSlot) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}
