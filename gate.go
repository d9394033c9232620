package authflow

import (
	"context"
	"sync"
)

// Area classifies the screen the user is currently on.
type Area string

const (
	// AreaAuth covers public screens: login, signup, confirmation-pending.
	AreaAuth Area = "auth"
	// AreaProtected covers screens that require a ready session.
	AreaProtected Area = "protected"
)

// Route is a navigation target exposed to the UI layer.
type Route string

const (
	RouteLogin         Route = "/login"
	RouteTeamSelection Route = "/team-selection"
	RoutePublicEntry   Route = "/welcome"
)

// Decision is the outcome of evaluating SessionState against an area.
type Decision struct {
	Redirect bool
	Target   Route
	Reason   string
}

// Redirector performs the actual navigation side effect.
type Redirector interface {
	Navigate(route Route)
}

// RedirectorFunc adapts a function to the Redirector interface.
type RedirectorFunc func(route Route)

// Navigate implements Redirector.
func (f RedirectorFunc) Navigate(route Route) {
	if f != nil {
		f(route)
	}
}

// Decide is the pure decision function mapping (state, area) to an action.
// It never issues the redirect itself; see NavigationGate.Apply.
func Decide(state SessionState, area Area) Decision {
	return decide(state, area, RouteLogin, RouteTeamSelection)
}

func decide(state SessionState, area Area, login, teamSelection Route) Decision {
	switch {
	case state.IsLoading:
		return Decision{Reason: "initial session check in progress"}
	case state.Identity == nil:
		if area == AreaProtected {
			return Decision{Redirect: true, Target: login, Reason: "no identity on protected screen"}
		}
		return Decision{Reason: "signed out on auth screen"}
	case !state.Identity.Confirmed():
		return Decision{Reason: "awaiting email confirmation"}
	case state.Profile == nil:
		return Decision{Reason: "awaiting profile resolution"}
	case area == AreaAuth:
		return Decision{Redirect: true, Target: teamSelection, Reason: "session ready on auth screen"}
	default:
		return Decision{Reason: "already on the correct screen"}
	}
}

// NavigationGate wraps Decide with a one-shot redirect guard: for a single
// (identity, profile)-readiness transition at most one redirect is issued,
// even when the gate is invoked from several async paths at once. The guard
// clears on sign-out and on identity change.
type NavigationGate struct {
	redirector Redirector
	logger     Logger
	sink       ActivitySink
	login      Route
	selection  Route

	mu             sync.Mutex
	redirected     bool
	lastIdentityID string
	lastReady      bool
}

type GateOption func(*NavigationGate)

// WithGateLogger overrides the gate logger.
func WithGateLogger(logger Logger) GateOption {
	return func(g *NavigationGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGateActivitySink configures an ActivitySink for redirect events.
func WithGateActivitySink(sink ActivitySink) GateOption {
	return func(g *NavigationGate) {
		g.sink = normalizeActivitySink(sink)
	}
}

// WithGateRoutes overrides the default login and team-selection targets.
func WithGateRoutes(login, teamSelection Route) GateOption {
	return func(g *NavigationGate) {
		if login != "" {
			g.login = login
		}
		if teamSelection != "" {
			g.selection = teamSelection
		}
	}
}

// NewNavigationGate builds a gate that issues redirects through the given redirector.
func NewNavigationGate(redirector Redirector, opts ...GateOption) *NavigationGate {
	g := &NavigationGate{
		redirector: redirector,
		logger:     defLogger{},
		sink:       noopActivitySink{},
		login:      RouteLogin,
		selection:  RouteTeamSelection,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Apply evaluates the state and issues at most one redirect per transition.
// The returned decision reflects what actually happened: a redirect that was
// suppressed by the guard comes back with Redirect=false.
func (g *NavigationGate) Apply(state SessionState, area Area) Decision {
	g.mu.Lock()

	identityID := ""
	if state.Identity != nil {
		identityID = state.Identity.ID
	}

	// identity change or profile-readiness change opens a new transition
	if identityID != g.lastIdentityID || state.ProfileReady() != g.lastReady {
		g.redirected = false
		g.lastIdentityID = identityID
		g.lastReady = state.ProfileReady()
	}

	decision := decide(state, area, g.login, g.selection)
	if !decision.Redirect {
		g.mu.Unlock()
		return decision
	}

	if g.redirected {
		g.mu.Unlock()
		return Decision{Reason: "redirect already issued for this transition"}
	}

	g.redirected = true
	g.mu.Unlock()

	g.logger.Debug("navigation gate redirect to %s: %s", decision.Target, decision.Reason)
	recordActivity(context.Background(), g.sink, g.logger, ActivityEvent{
		EventType: ActivityEventRedirectIssued,
		UserID:    identityID,
		Metadata: map[string]any{
			"target": string(decision.Target),
			"reason": decision.Reason,
		},
	})

	if g.redirector != nil {
		g.redirector.Navigate(decision.Target)
	}

	return decision
}

// ClearGuard resets the one-shot guard. Called on sign-out; identity changes
// clear it implicitly inside Apply.
func (g *NavigationGate) ClearGuard() {
	g.mu.Lock()
	g.redirected = false
	g.lastIdentityID = ""
	g.lastReady = false
	g.mu.Unlock()
}
