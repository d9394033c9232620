package authflow

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidPhaseTransition = "INVALID_SESSION_PHASE_TRANSITION"
)

// ErrInvalidPhaseTransition is returned when a requested phase change is not allowed.
var ErrInvalidPhaseTransition = goerrors.New("invalid session phase transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidPhaseTransition).
	WithCode(goerrors.CodeBadRequest)

// SessionPhase is the coarse lifecycle position of the auth session.
type SessionPhase string

const (
	// PhaseInitializing covers the window before the initial session check completes.
	PhaseInitializing SessionPhase = "initializing"
	// PhaseSignedOut means no identity is present.
	PhaseSignedOut SessionPhase = "signed_out"
	// PhaseAwaitingConfirmation means the identity exists but the email is unconfirmed.
	PhaseAwaitingConfirmation SessionPhase = "awaiting_confirmation"
	// PhaseAwaitingProfile means the identity is confirmed but no profile row exists yet.
	PhaseAwaitingProfile SessionPhase = "awaiting_profile"
	// PhaseReady means identity and profile are both resolved.
	PhaseReady SessionPhase = "ready"
)

// PhaseForState derives the phase from a session state snapshot.
func PhaseForState(state SessionState) SessionPhase {
	switch {
	case state.IsLoading && state.Identity == nil:
		return PhaseInitializing
	case state.Identity == nil:
		return PhaseSignedOut
	case !state.Identity.Confirmed():
		return PhaseAwaitingConfirmation
	case state.Profile == nil:
		return PhaseAwaitingProfile
	default:
		return PhaseReady
	}
}

// PhaseTransition is passed into hooks for additional processing.
type PhaseTransition struct {
	From       SessionPhase
	To         SessionPhase
	IdentityID string
	OccurredAt time.Time
}

// PhaseHook is executed when a transition is applied.
type PhaseHook func(ctx context.Context, pt PhaseTransition) error

// PhaseMachine validates and observes session phase changes.
type PhaseMachine interface {
	Transition(ctx context.Context, identityID string, from, to SessionPhase, opts ...PhaseTransitionOption) error
	CanTransition(from, to SessionPhase) bool
}

// PhaseMachineOption customizes machine construction.
type PhaseMachineOption func(*phaseMachine)

// PhaseTransitionOption customizes a single transition.
type PhaseTransitionOption func(*phaseTransitionOptions)

type phaseTransitionOptions struct {
	force bool
	hooks []PhaseHook
}

// WithPhaseMachineClock injects a custom clock (useful for tests).
func WithPhaseMachineClock(clock func() time.Time) PhaseMachineOption {
	return func(m *phaseMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithPhaseMachineActivitySink sets the ActivitySink used to publish phase changes.
func WithPhaseMachineActivitySink(sink ActivitySink) PhaseMachineOption {
	return func(m *phaseMachine) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithPhaseMachineLogger overrides the logger used for hook and sink failures.
func WithPhaseMachineLogger(logger Logger) PhaseMachineOption {
	return func(m *phaseMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPhaseHook adds a hook executed after the transition is validated.
func WithPhaseHook(h PhaseHook) PhaseTransitionOption {
	return func(opts *phaseTransitionOptions) {
		if h != nil {
			opts.hooks = append(opts.hooks, h)
		}
	}
}

// WithForcePhaseTransition bypasses validation rules (use sparingly).
func WithForcePhaseTransition() PhaseTransitionOption {
	return func(opts *phaseTransitionOptions) {
		opts.force = true
	}
}

// NewPhaseMachine returns the default phase machine.
func NewPhaseMachine(opts ...PhaseMachineOption) PhaseMachine {
	m := &phaseMachine{
		transitions: map[SessionPhase]map[SessionPhase]struct{}{
			PhaseInitializing: {
				PhaseSignedOut:            {},
				PhaseAwaitingConfirmation: {},
				PhaseAwaitingProfile:      {},
				PhaseReady:                {},
			},
			PhaseSignedOut: {
				PhaseAwaitingConfirmation: {},
				PhaseAwaitingProfile:      {},
				PhaseReady:                {},
			},
			PhaseAwaitingConfirmation: {
				PhaseAwaitingProfile: {},
				PhaseReady:           {},
				PhaseSignedOut:       {},
			},
			PhaseAwaitingProfile: {
				PhaseReady:     {},
				PhaseSignedOut: {},
			},
			PhaseReady: {
				// identity change drops the profile until it re-resolves
				PhaseAwaitingProfile: {},
				PhaseSignedOut:       {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

type phaseMachine struct {
	transitions  map[SessionPhase]map[SessionPhase]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (m *phaseMachine) Transition(ctx context.Context, identityID string, from, to SessionPhase, opts ...PhaseTransitionOption) error {
	if to == "" {
		return ErrInvalidPhaseTransition.WithMetadata(map[string]any{
			"reason": "target phase is empty",
		})
	}

	if from == to {
		return nil
	}

	options := &phaseTransitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if !options.force && !m.CanTransition(from, to) {
		return ErrInvalidPhaseTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
	}

	pt := PhaseTransition{
		From:       from,
		To:         to,
		IdentityID: identityID,
		OccurredAt: m.now(),
	}

	for _, hook := range options.hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, pt); err != nil {
			return err
		}
	}

	recordActivity(ctx, m.activitySink, m.logger, ActivityEvent{
		EventType: ActivityEventIdentityUpdated,
		UserID:    identityID,
		Metadata: map[string]any{
			"from": string(from),
			"to":   string(to),
		},
		OccurredAt: pt.OccurredAt,
	})

	return nil
}

func (m *phaseMachine) CanTransition(from, to SessionPhase) bool {
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
