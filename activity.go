package authflow

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignedIn        ActivityEventType = "session.signed_in"
	ActivityEventSignedOut       ActivityEventType = "session.signed_out"
	ActivityEventIdentityUpdated ActivityEventType = "session.identity.updated"
	ActivityEventProfileResolved ActivityEventType = "session.profile.resolved"
	ActivityEventRedirectIssued  ActivityEventType = "session.redirect.issued"
	ActivityEventLoginFailure    ActivityEventType = "auth.login.failure"
	ActivityEventSignupFailure   ActivityEventType = "auth.signup.failure"
	ActivityEventPasswordReset   ActivityEventType = "auth.password.reset"
	ActivityEventDeepLink        ActivityEventType = "auth.deep_link"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("activity sink record error: %v", err)
	}
}
