package authflow

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the SessionState in the given context
func WithContext(r context.Context, state SessionState) context.Context {
	return context.WithValue(r, sessionCtxKey, state)
}

// FromContext finds the session state from the context.
func FromContext(ctx context.Context) (SessionState, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(SessionState)
	return raw, ok
}

// IdentityFromContext returns the identity carried by the context, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	state, ok := FromContext(ctx)
	if !ok || state.Identity == nil {
		return nil, false
	}
	return state.Identity, true
}
