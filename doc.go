// Package authflow manages the client-side authentication session lifecycle:
// establishing and restoring a session, reacting to asynchronous auth events,
// resolving the application profile, and gating navigation on combined
// auth+profile readiness.
//
// Session state:
//   - SessionStore is the single source of truth for SessionState. Identity
//     and profile always mutate consistently together, and subscribers are
//     notified synchronously on every change.
//   - AuthEventListener holds the one process-lifetime subscription to the
//     identity provider's event stream. Attaching twice is a guarded error;
//     teardown happens exactly once at shutdown.
//
// Profile resolution:
//   - ProfileResolver fetches the profile record for an identity and can poll
//     until a backend trigger creates it. At most one PollingHandle is active
//     at a time; ticks are serial and transport errors retry on the next tick.
//
// Navigation:
//   - NavigationGate maps (identity, profile, screen area) to at most one
//     redirect per readiness transition, so concurrent mount checks and event
//     callbacks cannot cause redirect loops or flicker.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used across the flow to
//     describe sign-in, sign-out, profile resolution, and redirect events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking the session loop.
package authflow
