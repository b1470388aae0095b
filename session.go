package auth

import (
	"sync"
)

// State is a snapshot of the session. Identity is a private copy owned by
// the snapshot holder.
type State struct {
	Identity         *Identity `json:"identity,omitempty"`
	AccessCredential string    `json:"-"`
	Authenticated    bool      `json:"authenticated"`
	Loading          bool      `json:"loading"`
	Initialized      bool      `json:"initialized"`
}

// Role returns the identity role or "" when nobody is signed in.
func (s State) Role() Role {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Role
}

func (s State) clone() State {
	s.Identity = s.Identity.Clone()
	return s
}

// consistent reports whether the authenticated flag matches the presence of
// both identity and access credential.
func (s State) consistent() bool {
	return s.Authenticated == (s.Identity != nil && s.AccessCredential != "")
}

// Observer receives the complete state after every transition.
type Observer func(State)

// Store is the session state container. It is safe for concurrent use;
// observers are notified in transition order, outside the state lock, and
// must not call Store mutators synchronously.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	state     State
	epoch     uint64
	sink      CredentialSink
	observers map[uint64]Observer
	nextID    uint64
}

// NewStore returns an uninitialized, loading store. A nil sink is replaced
// by a no-op sink.
func NewStore(sink CredentialSink) *Store {
	if sink == nil {
		sink = noopSink{}
	}
	return &Store{
		sink:      sink,
		state:     State{Loading: true},
		observers: map[uint64]Observer{},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Epoch changes every time a session is established or cleared.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Observe is Subscribe plus an immediate delivery of the current state. No
// transition can slip between the first delivery and the subscription.
func (s *Store) Observe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	snapshot := s.state.clone()
	s.mu.Unlock()

	fn(snapshot)

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// SetAuth establishes a session and pushes the access credential to the
// transport sink.
func (s *Store) SetAuth(identity *Identity, accessCredential string) error {
	if identity == nil || accessCredential == "" {
		return ErrInvalidSession
	}

	s.transition(func(st *State) (bool, func()) {
		st.Identity = identity.Clone()
		st.AccessCredential = accessCredential
		st.Authenticated = true
		st.Loading = false
		return true, func() {
			s.epoch++
			s.sink.SetAccessCredential(accessCredential)
		}
	})
	return nil
}

// ClearAuth drops identity and access credential and clears the sink.
func (s *Store) ClearAuth() {
	s.transition(func(st *State) (bool, func()) {
		st.Identity = nil
		st.AccessCredential = ""
		st.Authenticated = false
		st.Loading = false
		return true, func() {
			s.epoch++
			s.sink.ClearAccessCredential()
		}
	})
}

// UpdateToken replaces the access credential of the current session. It
// does nothing when no session is established.
func (s *Store) UpdateToken(accessCredential string) {
	s.transition(func(st *State) (bool, func()) {
		return s.updateTokenLocked(st, accessCredential)
	})
}

// UpdateTokenIfEpoch replaces the access credential only if no session was
// established or cleared since epoch was read. It reports whether the token
// was installed.
func (s *Store) UpdateTokenIfEpoch(epoch uint64, accessCredential string) bool {
	installed := false
	s.transition(func(st *State) (bool, func()) {
		if s.epoch != epoch {
			return false, nil
		}
		ok, effect := s.updateTokenLocked(st, accessCredential)
		installed = ok
		return ok, effect
	})
	return installed
}

func (s *Store) updateTokenLocked(st *State, accessCredential string) (bool, func()) {
	if !st.Authenticated || accessCredential == "" {
		return false, nil
	}
	st.AccessCredential = accessCredential
	return true, func() {
		s.sink.SetAccessCredential(accessCredential)
	}
}

// UpdateUser merges patch into the current identity. No-op when nobody is
// signed in.
func (s *Store) UpdateUser(patch IdentityPatch) {
	s.transition(func(st *State) (bool, func()) {
		if st.Identity == nil {
			return false, nil
		}
		st.Identity = st.Identity.Merge(patch)
		return true, nil
	})
}

// SetInitialized marks the end of bootstrap. Only the first call has an
// effect.
func (s *Store) SetInitialized() {
	s.transition(func(st *State) (bool, func()) {
		if st.Initialized {
			return false, nil
		}
		st.Initialized = true
		st.Loading = false
		return true, nil
	})
}

// StageAccessCredential attaches a credential to the transport sink without
// touching the state, so a follow-up call can authenticate before the
// identity is known.
func (s *Store) StageAccessCredential(accessCredential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.SetAccessCredential(accessCredential)
}

// transition applies mutate to a copy of the state and commits it only if the
// result still satisfies the authenticated invariant. effect runs under the
// state lock right after the commit.
func (s *Store) transition(mutate func(st *State) (bool, func())) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.state
	commit, effect := mutate(&next)
	if !commit || !next.consistent() {
		s.mu.Unlock()
		return
	}

	s.state = next
	if effect != nil {
		effect()
	}
	snapshot := next.clone()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}
