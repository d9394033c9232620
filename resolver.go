package authflow

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// PollingHandle represents an active "wait for profile creation" loop.
// At most one handle is active per resolver. Cancel is safe to call from a
// teardown path while a tick is in flight; the tick's result is discarded.
type PollingHandle struct {
	email      string
	stop       chan struct{}
	done       chan struct{}
	cancelOnce sync.Once
}

// Email returns the address this handle is polling for.
func (h *PollingHandle) Email() string {
	return h.email
}

// Cancel stops the repeating lookup. Safe to call multiple times and after
// auto-resolution.
func (h *PollingHandle) Cancel() {
	if h == nil {
		return
	}
	h.cancelOnce.Do(func() {
		close(h.stop)
	})
}

// Done is closed once the polling loop has fully exited.
func (h *PollingHandle) Done() <-chan struct{} {
	return h.done
}

// ProfileResolver retrieves the Profile matching an identity from the backend,
// optionally polling until one appears.
type ProfileResolver struct {
	profiles ProfileStore
	logger   Logger
	sink     ActivitySink
	interval time.Duration

	mu     sync.Mutex
	active *PollingHandle
}

type ResolverOption func(*ProfileResolver)

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *ProfileResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverInterval sets the polling cadence.
func WithResolverInterval(interval time.Duration) ResolverOption {
	return func(r *ProfileResolver) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithResolverActivitySink configures an ActivitySink for resolution events.
func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *ProfileResolver) {
		r.sink = normalizeActivitySink(sink)
	}
}

// NewProfileResolver creates a resolver backed by the given profile store.
func NewProfileResolver(profiles ProfileStore, opts ...ResolverOption) *ProfileResolver {
	r := &ProfileResolver{
		profiles: profiles,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		interval: DefaultPollInterval,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// FetchOnce looks up the profile by identity id. "Not found" is a valid
// transient state and returns (nil, nil); only transport failures error.
func (r *ProfileResolver) FetchOnce(ctx context.Context, identityID string) (*Profile, error) {
	profile, err := r.profiles.SelectProfileByID(ctx, identityID)
	if err != nil {
		if isProfileNotFound(err) {
			return nil, nil
		}
		return nil, WrapTransport(err, "profile lookup by id failed")
	}

	return profile, nil
}

// FetchByEmail looks up the profile by email, case-insensitively. Zero or
// ambiguous matches return (nil, nil); never more than one record.
func (r *ProfileResolver) FetchByEmail(ctx context.Context, email string) (*Profile, error) {
	profile, err := r.profiles.SelectProfileByEmail(ctx, email)
	if err != nil {
		if isProfileNotFound(err) {
			return nil, nil
		}
		return nil, WrapTransport(err, "profile lookup by email failed")
	}

	return profile, nil
}

// StartPolling begins a repeating FetchByEmail loop. Calling it while a
// handle is already active, for the same or a different email, is a no-op
// that returns the existing handle. Ticks are strictly serial; transport
// errors are logged and the loop retries on the next tick.
func (r *ProfileResolver) StartPolling(ctx context.Context, email string, onResolved func(*Profile)) *PollingHandle {
	r.mu.Lock()
	if r.active != nil {
		handle := r.active
		r.mu.Unlock()
		return handle
	}

	handle := &PollingHandle{
		email: email,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	r.active = handle
	r.mu.Unlock()

	go r.poll(ctx, handle, onResolved)

	return handle
}

// Cancel stops the given handle. Safe on nil, already-cancelled, and
// already-resolved handles.
func (r *ProfileResolver) Cancel(handle *PollingHandle) {
	handle.Cancel()
}

// CancelActive cancels the active handle, if any. Used on sign-out.
func (r *ProfileResolver) CancelActive() {
	r.mu.Lock()
	handle := r.active
	r.mu.Unlock()

	handle.Cancel()
}

// Active returns the current handle or nil.
func (r *ProfileResolver) Active() *PollingHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *ProfileResolver) poll(ctx context.Context, handle *PollingHandle, onResolved func(*Profile)) {
	defer func() {
		r.mu.Lock()
		if r.active == handle {
			r.active = nil
		}
		r.mu.Unlock()
		close(handle.done)
	}()

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-handle.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		profile, err := r.FetchByEmail(ctx, handle.email)
		if err != nil {
			r.logger.Warn("profile poll tick failed for %s: %v", handle.email, err)
			timer.Reset(r.interval)
			continue
		}

		if profile != nil {
			select {
			case <-handle.stop:
				// cancelled while the tick was in flight, discard the result
				return
			default:
			}

			handle.Cancel()
			recordActivity(ctx, r.sink, r.logger, ActivityEvent{
				EventType: ActivityEventProfileResolved,
				UserID:    profile.ID,
				Metadata:  map[string]any{"email": handle.email},
			})

			if onResolved != nil {
				onResolved(profile)
			}
			return
		}

		timer.Reset(r.interval)
	}
}

func isProfileNotFound(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.IsNotFound(err) || errors.Is(err, sql.ErrNoRows)
}
