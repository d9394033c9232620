// Package local implements an in-memory identity provider for development
// and tests. It mirrors the hosted provider's observable behavior: password
// verification, email confirmation tokens, recovery tokens, and ordered auth
// state events.
package local

import (
	"context"
	"sync"
	"time"

	authflow "github.com/goliatone/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type record struct {
	id           string
	email        string
	passwordHash string
	confirmedAt  *time.Time
	metadata     map[string]any
	accessToken  string
	refreshToken string
	confirmToken string
}

func (r *record) identity() *authflow.Identity {
	if r == nil {
		return nil
	}
	return &authflow.Identity{
		ID:          r.id,
		Email:       r.email,
		ConfirmedAt: r.confirmedAt,
	}
}

type subscriber struct {
	id int
	fn func(authflow.AuthEvent)
}

// Provider is an in-memory authflow.IdentityClient.
type Provider struct {
	mu          sync.Mutex
	logger      authflow.Logger
	autoConfirm bool

	byEmail        map[string]*record
	byAccessToken  map[string]*record
	byConfirmToken map[string]*record
	current        *record

	subscribers []subscriber
	nextSubID   int
}

type Option func(*Provider)

// WithLogger overrides the provider logger.
func WithLogger(logger authflow.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAutoConfirm makes signups confirmed immediately, mirroring a backend
// with email confirmations disabled.
func WithAutoConfirm() Option {
	return func(p *Provider) {
		p.autoConfirm = true
	}
}

// New creates an empty in-memory provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		logger:         noopLogger{},
		byEmail:        map[string]*record{},
		byAccessToken:  map[string]*record{},
		byConfirmToken: map[string]*record{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

var _ authflow.IdentityClient = (*Provider)(nil)

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*authflow.Identity, error) {
	if email == "" || password == "" {
		return nil, goerrors.New("email and password are required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	p.mu.Lock()
	if _, exists := p.byEmail[email]; exists {
		p.mu.Unlock()
		return nil, goerrors.New("account already registered", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	p.mu.Unlock()

	hash, err := HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	rec := &record{
		id:           uuid.New().String(),
		email:        email,
		passwordHash: hash,
		metadata:     metadata,
		confirmToken: "confirm_" + uuid.New().String(),
	}

	p.mu.Lock()
	p.byEmail[email] = rec
	p.byConfirmToken[rec.confirmToken] = rec
	p.mu.Unlock()

	if p.autoConfirm {
		now := time.Now()
		p.mu.Lock()
		rec.confirmedAt = &now
		p.mu.Unlock()
		p.openSession(rec, authflow.EventSignedIn)
	}

	return rec.identity(), nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*authflow.Identity, error) {
	p.mu.Lock()
	rec, exists := p.byEmail[email]
	p.mu.Unlock()

	if !exists {
		return nil, authflow.ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, rec.passwordHash); err != nil {
		return nil, authflow.ErrInvalidCredentials
	}

	p.openSession(rec, authflow.EventSignedIn)

	return rec.identity(), nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.emit(authflow.AuthEvent{Type: authflow.EventSignedOut})

	return nil
}

func (p *Provider) GetSession(ctx context.Context) (*authflow.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.identity(), nil
}

func (p *Provider) GetUser(ctx context.Context) (*authflow.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.identity(), nil
}

func (p *Provider) OnAuthStateChange(fn func(authflow.AuthEvent)) func() {
	if fn == nil {
		return func() {}
	}

	p.mu.Lock()
	p.nextSubID++
	id := p.nextSubID
	p.subscribers = append(p.subscribers, subscriber{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.subscribers {
			if sub.id == id {
				p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	p.mu.Lock()
	rec, exists := p.byEmail[email]
	if exists {
		rec.confirmToken = "recovery_" + uuid.New().String()
		p.byConfirmToken[rec.confirmToken] = rec
	}
	p.mu.Unlock()

	// Unknown addresses succeed silently so the flow does not leak which
	// emails are registered.
	if exists {
		p.logger.Info("recovery link for %s: %s?token=%s", email, redirectTo, rec.confirmToken)
	}

	return nil
}

func (p *Provider) UpdateUser(ctx context.Context, update authflow.UserUpdate) error {
	p.mu.Lock()
	rec := p.current
	p.mu.Unlock()

	if rec == nil {
		return goerrors.New("no active session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	if update.Password != "" {
		hash, err := HashPassword(update.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		p.mu.Lock()
		rec.passwordHash = hash
		p.mu.Unlock()
	}

	if update.Email != "" {
		p.mu.Lock()
		delete(p.byEmail, rec.email)
		rec.email = update.Email
		p.byEmail[rec.email] = rec
		p.mu.Unlock()
	}

	p.emit(authflow.AuthEvent{Type: authflow.EventUserUpdated, Identity: rec.identity()})

	return nil
}

func (p *Provider) VerifyOTP(ctx context.Context, token, otpType string) error {
	p.mu.Lock()
	rec, exists := p.byConfirmToken[token]
	if exists {
		delete(p.byConfirmToken, token)
	}
	p.mu.Unlock()

	if !exists {
		return goerrors.New("invalid or expired token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	if otpType != "recovery" {
		p.confirm(rec)
	}

	p.openSession(rec, authflow.EventSignedIn)

	return nil
}

func (p *Provider) SetSession(ctx context.Context, accessToken, refreshToken string) (*authflow.Identity, error) {
	p.mu.Lock()
	rec, exists := p.byAccessToken[accessToken]
	p.mu.Unlock()

	if !exists || rec.refreshToken != refreshToken {
		return nil, goerrors.New("invalid session tokens", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	p.confirm(rec)
	p.openSession(rec, authflow.EventSignedIn)

	return rec.identity(), nil
}

// ConfirmEmail marks the account confirmed and returns deep link tokens, the
// way the hosted backend's verification email would. Test helper.
func (p *Provider) ConfirmEmail(email string) (accessToken, refreshToken string, err error) {
	p.mu.Lock()
	rec, exists := p.byEmail[email]
	p.mu.Unlock()

	if !exists {
		return "", "", goerrors.New("unknown account", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	p.confirm(rec)
	p.issueTokens(rec)

	return rec.accessToken, rec.refreshToken, nil
}

func (p *Provider) confirm(rec *record) {
	p.mu.Lock()
	if rec.confirmedAt == nil {
		now := time.Now()
		rec.confirmedAt = &now
	}
	p.mu.Unlock()
}

func (p *Provider) issueTokens(rec *record) {
	p.mu.Lock()
	if rec.accessToken != "" {
		delete(p.byAccessToken, rec.accessToken)
	}
	rec.accessToken = "at_" + uuid.New().String()
	rec.refreshToken = "rt_" + uuid.New().String()
	p.byAccessToken[rec.accessToken] = rec
	p.mu.Unlock()
}

func (p *Provider) openSession(rec *record, eventType authflow.AuthEventType) {
	p.mu.Lock()
	if rec.accessToken == "" {
		p.mu.Unlock()
		p.issueTokens(rec)
		p.mu.Lock()
	}
	p.current = rec
	p.mu.Unlock()

	p.emit(authflow.AuthEvent{Type: eventType, Identity: rec.identity()})
}

// emit delivers an event to every subscriber, in registration order, from a
// single goroutine at a time.
func (p *Provider) emit(event authflow.AuthEvent) {
	p.mu.Lock()
	subs := make([]subscriber, len(p.subscribers))
	copy(subs, p.subscribers)
	p.mu.Unlock()

	for _, sub := range subs {
		sub.fn(event)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
