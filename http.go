package authflow

import (
	"github.com/goliatone/go-router"
)

// SessionControllerRoutes configures the paths the bridge mounts.
type SessionControllerRoutes struct {
	Callback string
	Logout   string
}

// SessionController bridges the session flow into a web router: the deep
// link callback target and logout. Everything else stays in the UI layer.
type SessionController struct {
	Flow   *Flow
	Logger Logger
	Routes *SessionControllerRoutes
}

type SessionControllerOption func(*SessionController) *SessionController

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRoutes overrides the mounted paths.
func WithControllerRoutes(routes *SessionControllerRoutes) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// NewSessionController builds the router bridge for a flow.
func NewSessionController(flow *Flow, opts ...SessionControllerOption) *SessionController {
	c := &SessionController{
		Flow:   flow,
		Logger: defLogger{},
		Routes: &SessionControllerRoutes{
			Callback: "/auth/callback",
			Logout:   "/logout",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Flow == nil {
		panic("Missing Flow in session controller...")
	}

	return c
}

// RegisterSessionRoutes mounts the callback and logout routes.
func RegisterSessionRoutes[T any](app router.Router[T], flow *Flow, opts ...SessionControllerOption) {
	controller := NewSessionController(flow, opts...)

	app.Get(controller.Routes.Callback, controller.Callback).
		SetName("session.callback")

	app.Get(controller.Routes.Logout, controller.Logout).
		SetName("session.logout")
}

// Callback handles web deep links: the verification URL the provider
// redirects to after email confirmation or password recovery.
func (c *SessionController) Callback(ctx router.Context) error {
	result := c.Flow.HandleDeepLink(ctx.Context(), ctx.OriginalURL())
	if !result.Success {
		c.Logger.Warn("deep link callback rejected: %s", result.Message)
		return ctx.Redirect(c.Flow.cfg.GetPublicEntryRoute(), router.StatusSeeOther)
	}

	if c.Flow.State().ProfileReady() {
		return ctx.Redirect(c.Flow.cfg.GetTeamSelectionRoute(), router.StatusSeeOther)
	}

	return ctx.Redirect(c.Flow.cfg.GetPublicEntryRoute(), router.StatusSeeOther)
}

// Logout signs out and sends the user to the login screen.
func (c *SessionController) Logout(ctx router.Context) error {
	if result := c.Flow.Logout(ctx.Context()); !result.Success {
		c.Logger.Warn("logout failed: %s", result.Message)
	}

	return ctx.Redirect(c.Flow.cfg.GetLoginRoute(), router.StatusSeeOther)
}

// GateMiddleware evaluates the navigation decision table for every request
// to a screen area and redirects at most once per request.
func GateMiddleware(flow *Flow, area Area) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if decision := Decide(flow.State(), area); decision.Redirect {
				return ctx.Redirect(string(decision.Target), router.StatusSeeOther)
			}
			return next(ctx)
		}
	}
}
