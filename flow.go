package authflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/hashid/pkg/hashid"
)

// Flow is the facade the UI layer talks to. It owns the session store, the
// event listener, the profile resolver, and the navigation gate, and exposes
// the operation surface: login, signup, logout, password reset, email
// confirmation wait, and deep link handling.
//
// Construct one per process; pass dependencies in so tests can build
// isolated instances.
type Flow struct {
	client     IdentityClient
	profiles   ProfileStore
	cfg        Config
	store      *SessionStore
	resolver   *ProfileResolver
	gate       *NavigationGate
	listener   *AuthEventListener
	machine    PhaseMachine
	redirector Redirector
	logger     Logger
	sink       ActivitySink
	debug      bool

	// pollCtx bounds confirmation polling to the flow lifetime, not to the
	// operation that started it. Cancelled once, in Close.
	pollCtx    context.Context
	pollCancel context.CancelFunc

	busy      atomic.Bool
	closeOnce sync.Once

	phaseMu   sync.Mutex
	lastPhase SessionPhase

	resetMu   sync.Mutex
	resetStep ResetStep
}

type FlowOption func(*Flow)

// WithFlowLogger overrides the logger used across all owned components.
func WithFlowLogger(logger Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFlowActivitySink configures the ActivitySink shared by the components.
func WithFlowActivitySink(sink ActivitySink) FlowOption {
	return func(f *Flow) {
		f.sink = normalizeActivitySink(sink)
	}
}

// WithFlowRedirector sets the navigation side-effect target.
func WithFlowRedirector(redirector Redirector) FlowOption {
	return func(f *Flow) {
		f.redirector = redirector
	}
}

// WithFlowPhaseMachine overrides the phase machine used to audit transitions.
func WithFlowPhaseMachine(machine PhaseMachine) FlowOption {
	return func(f *Flow) {
		if machine != nil {
			f.machine = machine
		}
	}
}

// WithFlowDebug enables payload logging for development.
func WithFlowDebug(debug bool) FlowOption {
	return func(f *Flow) {
		f.debug = debug
	}
}

// NewFlow wires the session lifecycle components together.
func NewFlow(client IdentityClient, profiles ProfileStore, cfg Config, opts ...FlowOption) *Flow {
	f := &Flow{
		client:    client,
		profiles:  profiles,
		cfg:       cfg,
		logger:    defLogger{},
		sink:      noopActivitySink{},
		lastPhase: PhaseInitializing,
		resetStep: ResetStepRequest,
	}
	f.pollCtx, f.pollCancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.machine == nil {
		f.machine = NewPhaseMachine(
			WithPhaseMachineLogger(f.logger),
			WithPhaseMachineActivitySink(f.sink),
		)
	}

	f.store = NewSessionStore().WithLogger(f.logger)
	f.resolver = NewProfileResolver(profiles,
		WithResolverInterval(cfg.GetPollInterval()),
		WithResolverLogger(f.logger),
		WithResolverActivitySink(f.sink),
	)
	f.gate = NewNavigationGate(f.redirector,
		WithGateRoutes(Route(cfg.GetLoginRoute()), Route(cfg.GetTeamSelectionRoute())),
		WithGateLogger(f.logger),
		WithGateActivitySink(f.sink),
	)
	f.listener = NewAuthEventListener(client, f.store, f.resolver, f.gate,
		WithListenerLogger(f.logger),
		WithListenerActivitySink(f.sink),
	)

	f.store.Subscribe(f.auditPhase)

	return f
}

// Start attaches the event listener and runs the initial session check.
// Calling it twice returns ErrDuplicateSubscription.
func (f *Flow) Start(ctx context.Context) error {
	if err := f.listener.Attach(); err != nil {
		return err
	}

	identity, err := f.client.GetSession(ctx)
	if err != nil {
		f.logger.Error("initial session check failed: %v", err)
		identity = nil
	}

	f.listener.Handle(AuthEvent{Type: EventInitialSession, Identity: identity})

	return nil
}

// Close tears down the listener subscription and any active polling,
// exactly once, regardless of how shutdown is triggered.
func (f *Flow) Close() {
	f.closeOnce.Do(func() {
		f.listener.Detach()
		f.resolver.CancelActive()
		f.pollCancel()
	})
}

// State returns the current session state snapshot.
func (f *Flow) State() SessionState {
	return f.store.State()
}

// Subscribe registers a UI listener for state changes.
func (f *Flow) Subscribe(fn func(SessionState)) func() {
	return f.store.Subscribe(fn)
}

// Store exposes the session store for advanced wiring.
func (f *Flow) Store() *SessionStore {
	return f.store
}

// Gate exposes the navigation gate so screens can run mount-time checks.
func (f *Flow) Gate() *NavigationGate {
	return f.gate
}

// Resolver exposes the profile resolver.
func (f *Flow) Resolver() *ProfileResolver {
	return f.resolver
}

// Busy reports whether an operation is in flight; the UI uses it to drive
// loading indicators.
func (f *Flow) Busy() bool {
	return f.busy.Load()
}

// ResetStep reports progress through the password reset flow.
func (f *Flow) ResetStep() ResetStep {
	f.resetMu.Lock()
	defer f.resetMu.Unlock()
	return f.resetStep
}

// Login signs the user in with email and password. Validation runs before
// any network call; provider errors come back as a failed Result and leave
// SessionState untouched.
func (f *Flow) Login(ctx context.Context, req LoginRequest) Result {
	defer f.beginOp()()

	if err := req.Validate(); err != nil {
		return failResult(err.Error())
	}

	if f.debug {
		f.logger.Debug("login payload: %s", print.MaybePrettyJSON(req))
	}

	if _, err := f.client.SignInWithPassword(ctx, req.Email, req.Password); err != nil {
		recordActivity(ctx, f.sink, f.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"email": req.Email, "error": err.Error()},
		})
		return failResult(operationFailureMessage(err))
	}

	return okResult("Signed in")
}

// Signup registers a new account. Depending on configuration the profile row
// is either inserted directly or awaited via polling while the backend
// trigger creates it.
func (f *Flow) Signup(ctx context.Context, req SignupRequest) Result {
	defer f.beginOp()()

	if err := req.Validate(); err != nil {
		return failResult(err.Error())
	}

	if f.debug {
		f.logger.Debug("signup payload: %s", print.MaybePrettyJSON(req))
	}

	identity, err := f.client.SignUp(ctx, req.Email, req.Password, req.Metadata())
	if err != nil {
		recordActivity(ctx, f.sink, f.logger, ActivityEvent{
			EventType: ActivityEventSignupFailure,
			Metadata:  map[string]any{"email": req.Email, "error": err.Error()},
		})
		return failResult(operationFailureMessage(err))
	}

	switch f.cfg.GetProfileCreationMode() {
	case ProfileCreationClient:
		if err := f.insertProfile(ctx, identity, req); err != nil {
			f.logger.Error("profile insert after signup failed: %v", err)
			return failResult("Account created but profile setup failed. Please try again.")
		}
	default:
		f.StartEmailConfirmationWait(req.Email)
	}

	return okResult("Check your email to confirm your account")
}

// Logout signs the user out. The listener resets state when the provider
// delivers the SIGNED_OUT event.
func (f *Flow) Logout(ctx context.Context) Result {
	defer f.beginOp()()

	if err := f.client.SignOut(ctx); err != nil {
		return failResult(operationFailureMessage(err))
	}

	return okResult("Signed out")
}

// RequestPasswordReset sends a recovery email and advances the reset flow to
// the email-sent step.
func (f *Flow) RequestPasswordReset(ctx context.Context, email string) Result {
	defer f.beginOp()()

	req := ResetPasswordRequest{Email: email}
	if err := req.Validate(); err != nil {
		return failResult(err.Error())
	}

	if err := f.client.ResetPasswordForEmail(ctx, email, f.cfg.GetPasswordResetRedirect()); err != nil {
		return failResult(operationFailureMessage(err))
	}

	f.setResetStep(ResetStepEmailSent)

	recordActivity(ctx, f.sink, f.logger, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Metadata:  map[string]any{"email": email},
	})

	return okResult("Check your email for the reset link")
}

// ConfirmNewPassword finalizes password recovery. A mismatched confirmation
// is rejected before any network call.
func (f *Flow) ConfirmNewPassword(ctx context.Context, req ConfirmPasswordRequest) Result {
	defer f.beginOp()()

	if err := req.Validate(); err != nil {
		return failResult(err.Error())
	}

	if err := f.client.UpdateUser(ctx, UserUpdate{Password: req.Password}); err != nil {
		return failResult(operationFailureMessage(err))
	}

	f.setResetStep(ResetStepDone)

	return okResult("Password updated")
}

// StartEmailConfirmationWait begins polling for the profile row the backend
// creates after the user confirms their email. When it resolves, the session
// store is updated and the gate evaluates the redirect.
//
// The poll runs on the flow lifetime, so it survives the operation that
// started it; only CancelEmailConfirmationWait, resolution, or Close end it.
func (f *Flow) StartEmailConfirmationWait(email string) *PollingHandle {
	return f.resolver.StartPolling(f.pollCtx, email, func(profile *Profile) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if identity, err := f.client.GetUser(refreshCtx); err == nil && identity != nil {
			f.store.SetIdentity(identity)
		}

		f.store.SetProfile(profile)
		f.gate.Apply(f.store.State(), AreaAuth)
	})
}

// CancelEmailConfirmationWait stops the active confirmation poll, if any.
func (f *Flow) CancelEmailConfirmationWait() {
	f.resolver.CancelActive()
}

// HandleDeepLink parses a verification or recovery URL and adopts the
// session it carries. Malformed links produce a recoverable failure that
// routes back to the public entry screen.
func (f *Flow) HandleDeepLink(ctx context.Context, raw string) Result {
	defer f.beginOp()()

	tokens, err := ParseDeepLink(raw)
	if err != nil {
		recordActivity(ctx, f.sink, f.logger, ActivityEvent{
			EventType: ActivityEventDeepLink,
			Metadata:  map[string]any{"error": err.Error()},
		})

		if f.redirector != nil {
			f.redirector.Navigate(Route(f.cfg.GetPublicEntryRoute()))
		}

		return failResult("This link is invalid or has expired")
	}

	if tokens.Type == "recovery" {
		f.setResetStep(ResetStepChangePassword)
	}

	if _, err := f.client.SetSession(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return failResult(operationFailureMessage(err))
	}

	recordActivity(ctx, f.sink, f.logger, ActivityEvent{
		EventType: ActivityEventDeepLink,
		Metadata:  map[string]any{"type": tokens.Type},
	})

	return okResult("")
}

func (f *Flow) insertProfile(ctx context.Context, identity *Identity, req SignupRequest) error {
	id := ""
	if identity != nil {
		id = identity.ID
	}
	if id == "" {
		generated, err := hashid.NewUUID(req.Email)
		if err != nil {
			return err
		}
		id = generated.String()
	}

	now := time.Now()

	return f.profiles.InsertProfile(ctx, &Profile{
		ID:        id,
		Name:      req.Name,
		Handle:    req.Handle,
		Email:     req.Email,
		CreatedAt: &now,
	})
}

// beginOp flips the busy flag and returns the cleanup to defer, so loading
// indicators always clear even when an operation fails mid-way.
func (f *Flow) beginOp() func() {
	f.busy.Store(true)
	return func() {
		f.busy.Store(false)
	}
}

func (f *Flow) setResetStep(step ResetStep) {
	f.resetMu.Lock()
	f.resetStep = step
	f.resetMu.Unlock()
}

// auditPhase runs on every store mutation and validates the derived phase
// change against the transition table, logging anything unexpected.
func (f *Flow) auditPhase(state SessionState) {
	next := PhaseForState(state)

	f.phaseMu.Lock()
	prev := f.lastPhase
	f.lastPhase = next
	f.phaseMu.Unlock()

	if prev == next {
		return
	}

	identityID := ""
	if state.Identity != nil {
		identityID = state.Identity.ID
	}

	if err := f.machine.Transition(context.Background(), identityID, prev, next); err != nil {
		f.logger.Warn("unexpected session phase change %s -> %s: %v", prev, next, err)
	}
}

// operationFailureMessage converts provider errors into the single, specific
// notification the UI shows. Raw provider errors never escape.
func operationFailureMessage(err error) string {
	switch {
	case IsInvalidCredentials(err):
		return "Invalid email or password"
	case IsNetworkFailure(err):
		return "Something went wrong. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
