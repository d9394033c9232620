package authflow_test

import (
	"context"
	"io"
	"mime/multipart"
	"sync"
	"time"

	authflow "github.com/goliatone/go-authflow"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// MockIdentityClient implements authflow.IdentityClient
type MockIdentityClient struct {
	mock.Mock

	mu        sync.Mutex
	callbacks []func(authflow.AuthEvent)
}

func (m *MockIdentityClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*authflow.Identity, error) {
	args := m.Called(ctx, email, password, metadata)
	identity, _ := args.Get(0).(*authflow.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityClient) SignInWithPassword(ctx context.Context, email, password string) (*authflow.Identity, error) {
	args := m.Called(ctx, email, password)
	identity, _ := args.Get(0).(*authflow.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityClient) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityClient) GetSession(ctx context.Context) (*authflow.Identity, error) {
	args := m.Called(ctx)
	identity, _ := args.Get(0).(*authflow.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityClient) GetUser(ctx context.Context) (*authflow.Identity, error) {
	args := m.Called(ctx)
	identity, _ := args.Get(0).(*authflow.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityClient) OnAuthStateChange(fn func(authflow.AuthEvent)) func() {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	idx := len(m.callbacks) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.callbacks) {
			m.callbacks[idx] = nil
		}
	}
}

// Emit pushes an event to every live callback, simulating the provider.
func (m *MockIdentityClient) Emit(event authflow.AuthEvent) {
	m.mu.Lock()
	callbacks := make([]func(authflow.AuthEvent), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		if fn != nil {
			fn(event)
		}
	}
}

// SubscriberCount reports how many live callbacks are registered.
func (m *MockIdentityClient) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, fn := range m.callbacks {
		if fn != nil {
			count++
		}
	}
	return count
}

func (m *MockIdentityClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	args := m.Called(ctx, email, redirectTo)
	return args.Error(0)
}

func (m *MockIdentityClient) UpdateUser(ctx context.Context, update authflow.UserUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func (m *MockIdentityClient) VerifyOTP(ctx context.Context, token, otpType string) error {
	args := m.Called(ctx, token, otpType)
	return args.Error(0)
}

func (m *MockIdentityClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*authflow.Identity, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	identity, _ := args.Get(0).(*authflow.Identity)
	return identity, args.Error(1)
}

// fakeProfileStore is an in-memory authflow.ProfileStore with injectable
// failures, so resolver tests can exercise retry behavior.
type fakeProfileStore struct {
	mu        sync.Mutex
	byID      map[string]*authflow.Profile
	byEmail   map[string]*authflow.Profile
	failNext  int
	fetchedAt []time.Time
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		byID:    map[string]*authflow.Profile{},
		byEmail: map[string]*authflow.Profile{},
	}
}

func (s *fakeProfileStore) put(profile *authflow.Profile) {
	s.mu.Lock()
	s.byID[profile.ID] = profile
	s.byEmail[profile.Email] = profile
	s.mu.Unlock()
}

// failTimes makes the next n lookups return a transport error.
func (s *fakeProfileStore) failTimes(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

func (s *fakeProfileStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetchedAt)
}

func (s *fakeProfileStore) SelectProfileByID(ctx context.Context, id string) (*authflow.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchedAt = append(s.fetchedAt, time.Now())
	if s.failNext > 0 {
		s.failNext--
		return nil, errors.New("connection refused", errors.CategoryOperation)
	}

	profile, ok := s.byID[id]
	if !ok {
		return nil, errors.New("profile not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound)
	}
	return profile, nil
}

func (s *fakeProfileStore) SelectProfileByEmail(ctx context.Context, email string) (*authflow.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchedAt = append(s.fetchedAt, time.Now())
	if s.failNext > 0 {
		s.failNext--
		return nil, errors.New("connection refused", errors.CategoryOperation)
	}

	profile, ok := s.byEmail[email]
	if !ok {
		return nil, errors.New("profile not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound)
	}
	return profile, nil
}

func (s *fakeProfileStore) InsertProfile(ctx context.Context, profile *authflow.Profile) error {
	s.put(profile)
	return nil
}

// captureRedirector records every navigation it is asked to perform.
type captureRedirector struct {
	mu     sync.Mutex
	routes []authflow.Route
}

func (r *captureRedirector) Navigate(route authflow.Route) {
	r.mu.Lock()
	r.routes = append(r.routes, route)
	r.mu.Unlock()
}

func (r *captureRedirector) calls() []authflow.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]authflow.Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// captureSink collects activity events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []authflow.ActivityEvent
}

func (s *captureSink) Record(ctx context.Context, event authflow.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) byType(t authflow.ActivityEventType) []authflow.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authflow.ActivityEvent
	for _, event := range s.events {
		if event.EventType == t {
			out = append(out, event)
		}
	}
	return out
}

// silentLogger keeps test output clean.
type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

// MockContext mocks router.Context for controller tests
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	vals, _ := args.Get(0).([]string)
	return vals
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	header, _ := args.Get(0).(*multipart.FileHeader)
	return header, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}

func confirmedIdentity(id, email string) *authflow.Identity {
	now := time.Now()
	return &authflow.Identity{ID: id, Email: email, ConfirmedAt: &now}
}

func unconfirmedIdentity(id, email string) *authflow.Identity {
	return &authflow.Identity{ID: id, Email: email}
}
