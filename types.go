package authflow

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the read-only cached copy of the account record owned by the
// remote identity provider. ConfirmedAt transitions once from nil to a
// timestamp when the user confirms their email.
type Identity struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Confirmed reports whether the identity's email has been confirmed.
func (i *Identity) Confirmed() bool {
	return i != nil && i.ConfirmedAt != nil
}

// SessionState is the process-wide derived auth state. Mutated only through
// SessionStore; read by the navigation gate and the UI layer.
type SessionState struct {
	Identity  *Identity `json:"identity,omitempty"`
	Profile   *Profile  `json:"profile,omitempty"`
	IsLoading bool      `json:"is_loading"`
}

// ProfileReady reports whether the state carries a profile for the current identity.
func (s SessionState) ProfileReady() bool {
	return s.Identity != nil && s.Profile != nil
}

// AuthEventType tags events pushed by the identity provider.
type AuthEventType string

const (
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
	EventInitialSession AuthEventType = "INITIAL_SESSION"
)

// AuthEvent is a single auth state transition delivered by the provider.
type AuthEvent struct {
	Type     AuthEventType
	Identity *Identity
}

// UserUpdate carries the mutable attributes UpdateUser accepts.
type UserUpdate struct {
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IdentityClient is the boundary contract with the hosted identity provider.
// Implementations must deliver events in order, one callback at a time.
type IdentityClient interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Identity, error)
	GetUser(ctx context.Context) (*Identity, error)
	// OnAuthStateChange registers a callback and returns an unsubscribe handle.
	OnAuthStateChange(fn func(AuthEvent)) func()
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, update UserUpdate) error
	VerifyOTP(ctx context.Context, token, otpType string) error
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Identity, error)
}

// ProfileStore is the boundary contract with the external profile database.
// Lookups report "not found" with an error satisfying errors.IsNotFound; the
// resolver converts that into a nil profile.
type ProfileStore interface {
	SelectProfileByID(ctx context.Context, id string) (*Profile, error)
	SelectProfileByEmail(ctx context.Context, email string) (*Profile, error)
	InsertProfile(ctx context.Context, profile *Profile) error
}

// ProfileCreationMode selects who creates the Profile row after signup.
type ProfileCreationMode string

const (
	// ProfileCreationServer relies on a backend trigger to create the profile;
	// the client polls until the row appears.
	ProfileCreationServer ProfileCreationMode = "server"
	// ProfileCreationClient inserts the profile row directly after signup.
	ProfileCreationClient ProfileCreationMode = "client"
)

// Config holds flow options
type Config interface {
	GetPollInterval() time.Duration
	GetProfileCreationMode() ProfileCreationMode
	GetPasswordResetRedirect() string
	GetLoginRoute() string
	GetTeamSelectionRoute() string
	GetPublicEntryRoute() string
}

// FlowConfig is a plain struct Config implementation.
type FlowConfig struct {
	PollInterval          time.Duration
	ProfileCreation       ProfileCreationMode
	PasswordResetRedirect string
	LoginRoute            string
	TeamSelectionRoute    string
	PublicEntryRoute      string
}

func (c FlowConfig) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

func (c FlowConfig) GetProfileCreationMode() ProfileCreationMode {
	if c.ProfileCreation == "" {
		return ProfileCreationServer
	}
	return c.ProfileCreation
}

func (c FlowConfig) GetPasswordResetRedirect() string {
	return c.PasswordResetRedirect
}

func (c FlowConfig) GetLoginRoute() string {
	if c.LoginRoute == "" {
		return string(RouteLogin)
	}
	return c.LoginRoute
}

func (c FlowConfig) GetTeamSelectionRoute() string {
	if c.TeamSelectionRoute == "" {
		return string(RouteTeamSelection)
	}
	return c.TeamSelectionRoute
}

func (c FlowConfig) GetPublicEntryRoute() string {
	if c.PublicEntryRoute == "" {
		return string(RoutePublicEntry)
	}
	return c.PublicEntryRoute
}

// DefaultPollInterval is the profile polling cadence when none is configured.
var DefaultPollInterval = 3 * time.Second

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHFLOW "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
