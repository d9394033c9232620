package authflow

import (
	"context"
	"sync"
	"time"
)

// AuthEventListener subscribes once, for the lifetime of the process, to the
// identity client's event stream and translates each event into SessionStore
// mutations. Events are applied in delivery order; no reordering.
type AuthEventListener struct {
	client   IdentityClient
	store    *SessionStore
	resolver *ProfileResolver
	gate     *NavigationGate
	logger   Logger
	sink     ActivitySink
	timeout  time.Duration

	mu          sync.Mutex
	attached    bool
	unsubscribe func()
	detachOnce  sync.Once
}

type ListenerOption func(*AuthEventListener)

// WithListenerLogger overrides the listener logger.
func WithListenerLogger(logger Logger) ListenerOption {
	return func(l *AuthEventListener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithListenerActivitySink configures an ActivitySink for session events.
func WithListenerActivitySink(sink ActivitySink) ListenerOption {
	return func(l *AuthEventListener) {
		l.sink = normalizeActivitySink(sink)
	}
}

// WithListenerTimeout bounds the profile fetch triggered by sign-in events.
func WithListenerTimeout(timeout time.Duration) ListenerOption {
	return func(l *AuthEventListener) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

// NewAuthEventListener wires the event stream to the store, resolver, and gate.
func NewAuthEventListener(client IdentityClient, store *SessionStore, resolver *ProfileResolver, gate *NavigationGate, opts ...ListenerOption) *AuthEventListener {
	l := &AuthEventListener{
		client:   client,
		store:    store,
		resolver: resolver,
		gate:     gate,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		timeout:  10 * time.Second,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Attach subscribes to the client's event stream. Attaching twice is a
// guarded programmer error, it would duplicate event processing and
// navigation side effects.
func (l *AuthEventListener) Attach() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attached {
		return ErrDuplicateSubscription
	}

	l.unsubscribe = l.client.OnAuthStateChange(l.Handle)
	l.attached = true

	return nil
}

// Attached reports whether the listener currently holds a subscription.
func (l *AuthEventListener) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attached
}

// Detach tears the subscription down exactly once, regardless of how
// shutdown is triggered.
func (l *AuthEventListener) Detach() {
	l.detachOnce.Do(func() {
		l.mu.Lock()
		unsubscribe := l.unsubscribe
		l.unsubscribe = nil
		l.attached = false
		l.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

// Handle applies a single provider event. Exposed so the flow can feed the
// initial session check through the same path as pushed events.
func (l *AuthEventListener) Handle(event AuthEvent) {
	switch event.Type {
	case EventSignedIn, EventUserUpdated:
		l.handleSignedIn(event)
	case EventSignedOut:
		l.handleSignedOut()
	case EventInitialSession:
		l.handleInitialSession(event)
	default:
		l.logger.Warn("ignoring unknown auth event type %q", event.Type)
	}
}

func (l *AuthEventListener) handleSignedIn(event AuthEvent) {
	if event.Identity == nil {
		l.logger.Warn("%s event without identity, ignoring", event.Type)
		return
	}

	l.store.SetIdentity(event.Identity)

	eventType := ActivityEventSignedIn
	if event.Type == EventUserUpdated {
		eventType = ActivityEventIdentityUpdated
	}
	recordActivity(context.Background(), l.sink, l.logger, ActivityEvent{
		EventType: eventType,
		UserID:    event.Identity.ID,
	})

	l.resolveProfile(event.Identity)
}

func (l *AuthEventListener) handleSignedOut() {
	l.store.Reset()
	l.resolver.CancelActive()
	if l.gate != nil {
		l.gate.ClearGuard()
	}

	recordActivity(context.Background(), l.sink, l.logger, ActivityEvent{
		EventType: ActivityEventSignedOut,
	})
}

func (l *AuthEventListener) handleInitialSession(event AuthEvent) {
	if event.Identity != nil {
		l.store.SetIdentity(event.Identity)
		l.resolveProfile(event.Identity)
	}
	l.store.SetLoading(false)
}

// resolveProfile fetches the profile once. Failures are logged and leave the
// profile as it was; they never crash the listener.
func (l *AuthEventListener) resolveProfile(identity *Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	profile, err := l.resolver.FetchOnce(ctx, identity.ID)
	if err != nil {
		l.logger.Error("profile fetch for %s failed: %v", identity.ID, err)
		return
	}

	if profile != nil {
		l.store.SetProfile(profile)
	}
}
