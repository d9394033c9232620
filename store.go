package authflow

import (
	"sync"
)

// SessionStore is the single source of truth for SessionState. All writes
// funnel through SetIdentity, SetProfile, SetLoading, and Reset; subscribers
// are notified synchronously on every mutation.
//
// Access is serialized with a mutex so the "identity and profile always
// consistent together" invariant holds on multi-threaded runtimes.
type SessionStore struct {
	mu          sync.Mutex
	state       SessionState
	subscribers []storeSubscriber
	nextSubID   int
	logger      Logger
}

type storeSubscriber struct {
	id int
	fn func(SessionState)
}

// NewSessionStore returns a store initialized to {nil, nil, loading}.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		state:  SessionState{IsLoading: true},
		logger: defLogger{},
	}
}

func (s *SessionStore) WithLogger(logger Logger) *SessionStore {
	if logger != nil {
		s.mu.Lock()
		s.logger = logger
		s.mu.Unlock()
	}
	return s
}

// State returns a copy of the current session state.
func (s *SessionStore) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a listener invoked synchronously after every mutation.
// The returned function removes the listener; it is safe to call twice.
func (s *SessionStore) Subscribe(fn func(SessionState)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, storeSubscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// SetIdentity replaces the current identity. When the identity changes or
// clears, the profile is cleared in the same mutation so a reader never sees
// a profile that belongs to a different identity.
func (s *SessionStore) SetIdentity(identity *Identity) {
	s.mu.Lock()
	if identityChanged(s.state.Identity, identity) {
		s.state.Profile = nil
	}
	s.state.Identity = identity
	state := s.state
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subs, state)
}

// SetProfile attaches the resolved profile to the current identity. A profile
// without an identity is dropped, it would violate the consistency invariant.
func (s *SessionStore) SetProfile(profile *Profile) {
	s.mu.Lock()
	if profile != nil && s.state.Identity == nil {
		s.logger.Warn("dropping profile %s: no identity in session", profile.ID)
		s.mu.Unlock()
		return
	}
	s.state.Profile = profile
	state := s.state
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subs, state)
}

// SetLoading flips the loading flag. The flag starts true and is cleared once
// the initial session check and listener subscription complete; operations
// clear it on their defer path.
func (s *SessionStore) SetLoading(loading bool) {
	s.mu.Lock()
	if s.state.IsLoading == loading {
		s.mu.Unlock()
		return
	}
	s.state.IsLoading = loading
	state := s.state
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subs, state)
}

// Reset returns the store to the signed-out state {nil, nil, false}.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	s.state = SessionState{}
	state := s.state
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subs, state)
}

// Phase derives the current session phase from the state.
func (s *SessionStore) Phase() SessionPhase {
	return PhaseForState(s.State())
}

func (s *SessionStore) snapshotSubscribers() []storeSubscriber {
	subs := make([]storeSubscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	return subs
}

func notify(subs []storeSubscriber, state SessionState) {
	for _, sub := range subs {
		sub.fn(state)
	}
}

func identityChanged(current, next *Identity) bool {
	if current == nil || next == nil {
		return true
	}
	return current.ID != next.ID
}
