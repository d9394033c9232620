// Package gotrue implements the identity client against a GoTrue-compatible
// REST backend (Supabase Auth and friends). It keeps the session tokens
// client-side and pushes auth state events to registered callbacks, one at a
// time and in order.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	authflow "github.com/goliatone/go-authflow"
	goerrors "github.com/goliatone/go-errors"
)

type session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         *user  `json:"user"`
}

type user struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	ConfirmedAt      *time.Time     `json:"confirmed_at"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (u *user) identity() *authflow.Identity {
	if u == nil {
		return nil
	}
	confirmed := u.ConfirmedAt
	if confirmed == nil {
		confirmed = u.EmailConfirmedAt
	}
	return &authflow.Identity{
		ID:          u.ID,
		Email:       u.Email,
		ConfirmedAt: confirmed,
	}
}

type apiError struct {
	Code             int    `json:"code"`
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e apiError) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ErrorDescription != "":
		return e.ErrorDescription
	default:
		return e.Error
	}
}

type subscriber struct {
	id int
	fn func(authflow.AuthEvent)
}

// Client talks to a GoTrue backend over HTTP.
type Client struct {
	config Config
	http   *http.Client
	logger authflow.Logger

	mu          sync.Mutex
	session     *session
	subscribers []subscriber
	nextSubID   int

	// emitMu serializes event delivery so callbacks never interleave.
	emitMu sync.Mutex
}

type Option func(*Client)

// WithLogger overrides the client logger.
func WithLogger(logger authflow.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a GoTrue client from config.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.baseURL() == "" {
		return nil, fmt.Errorf("gotrue: base URL is required")
	}

	c := &Client{
		config: cfg,
		http:   cfg.httpClient(),
		logger: noopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

var _ authflow.IdentityClient = (*Client)(nil)

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*authflow.Identity, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	// Confirmation-required backends return a bare user; confirmation-off
	// backends return a full session.
	var out struct {
		session
		user
	}
	if err := c.do(ctx, http.MethodPost, "/signup", nil, payload, "", &out); err != nil {
		return nil, err
	}

	if out.session.AccessToken != "" {
		c.storeSession(&out.session)
		c.emit(authflow.AuthEvent{Type: authflow.EventSignedIn, Identity: out.session.User.identity()})
		return out.session.User.identity(), nil
	}

	return out.user.identity(), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authflow.Identity, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}

	sess := &session{}
	query := url.Values{"grant_type": []string{"password"}}
	if err := c.do(ctx, http.MethodPost, "/token", query, payload, "", sess); err != nil {
		return nil, err
	}

	c.storeSession(sess)
	c.emit(authflow.AuthEvent{Type: authflow.EventSignedIn, Identity: sess.User.identity()})

	return sess.User.identity(), nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if sess != nil {
		if err := c.do(ctx, http.MethodPost, "/logout", nil, nil, sess.AccessToken, nil); err != nil {
			// Local state is already cleared; the server-side revocation
			// failing should not keep the user signed in.
			c.logger.Warn("remote sign out failed: %v", err)
		}
	}

	c.emit(authflow.AuthEvent{Type: authflow.EventSignedOut})

	return nil
}

func (c *Client) GetSession(ctx context.Context) (*authflow.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	return c.session.User.identity(), nil
}

func (c *Client) GetUser(ctx context.Context) (*authflow.Identity, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	u := &user{}
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, sess.AccessToken, u); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session == sess {
		c.session.User = u
	}
	c.mu.Unlock()

	return u.identity(), nil
}

func (c *Client) OnAuthStateChange(fn func(authflow.AuthEvent)) func() {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subscribers {
			if sub.id == id {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	payload := map[string]any{"email": email}
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": []string{redirectTo}}
	}

	return c.do(ctx, http.MethodPost, "/recover", query, payload, "", nil)
}

func (c *Client) UpdateUser(ctx context.Context, update authflow.UserUpdate) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return goerrors.New("no active session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	payload := map[string]any{}
	if update.Password != "" {
		payload["password"] = update.Password
	}
	if update.Email != "" {
		payload["email"] = update.Email
	}

	u := &user{}
	if err := c.do(ctx, http.MethodPut, "/user", nil, payload, sess.AccessToken, u); err != nil {
		return err
	}

	c.mu.Lock()
	if c.session == sess {
		c.session.User = u
	}
	c.mu.Unlock()

	c.emit(authflow.AuthEvent{Type: authflow.EventUserUpdated, Identity: u.identity()})

	return nil
}

func (c *Client) VerifyOTP(ctx context.Context, token, otpType string) error {
	payload := map[string]any{
		"token": token,
		"type":  otpType,
	}

	sess := &session{}
	if err := c.do(ctx, http.MethodPost, "/verify", nil, payload, "", sess); err != nil {
		return err
	}

	if sess.AccessToken != "" {
		c.storeSession(sess)
		c.emit(authflow.AuthEvent{Type: authflow.EventSignedIn, Identity: sess.User.identity()})
	}

	return nil
}

func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*authflow.Identity, error) {
	u := &user{}
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, accessToken, u); err != nil {
		return nil, err
	}

	sess := &session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User:         u,
	}
	c.storeSession(sess)
	c.emit(authflow.AuthEvent{Type: authflow.EventSignedIn, Identity: u.identity()})

	return u.identity(), nil
}

func (c *Client) storeSession(sess *session) {
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
}

func (c *Client) emit(event authflow.AuthEvent) {
	c.mu.Lock()
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for _, sub := range subs {
		sub.fn(event)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, bearer string, out any) error {
	endpoint := c.config.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("apikey", c.config.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return authflow.WrapTransport(err, method+" "+path)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return authflow.WrapTransport(err, "reading "+path+" response")
	}

	if res.StatusCode >= 400 {
		return c.mapError(res.StatusCode, raw, path)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode "+path+" response")
		}
	}

	return nil
}

func (c *Client) mapError(status int, raw []byte, path string) error {
	var body apiError
	_ = json.Unmarshal(raw, &body)

	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		if body.Error == "invalid_grant" || status == http.StatusUnauthorized {
			clone := authflow.ErrInvalidCredentials.Clone()
			return clone.WithMetadata(map[string]any{
				"status": status,
				"detail": body.text(),
			})
		}
	}

	msg := body.text()
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d from %s", status, path)
	}

	category := goerrors.CategoryOperation
	code := goerrors.CodeInternal
	switch {
	case status == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		category = goerrors.CategoryBadInput
		code = goerrors.CodeBadRequest
	case status == http.StatusNotFound:
		category = goerrors.CategoryNotFound
		code = goerrors.CodeNotFound
	}

	return goerrors.New(msg, category).
		WithCode(code).
		WithMetadata(map[string]any{
			"status": status,
			"path":   path,
		})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
