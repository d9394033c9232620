package authflow

import (
	"github.com/gofiber/fiber/v2"
)

// SessionStateLocalKey is where the fiber middleware stores the state snapshot.
const SessionStateLocalKey = "session_state"

// MakeFiberDeepLinkHandler adapts the deep link flow to a fiber handler for
// apps that mount the callback on fiber directly.
func MakeFiberDeepLinkHandler(flow *Flow, successRedirect, failureRedirect string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result := flow.HandleDeepLink(c.Context(), c.OriginalURL())
		if !result.Success {
			return c.Redirect(failureRedirect, fiber.StatusSeeOther)
		}
		return c.Redirect(successRedirect, fiber.StatusSeeOther)
	}
}

// FiberSessionState stores the current state snapshot in request locals so
// templates and downstream handlers can read it without touching the flow.
func FiberSessionState(flow *Flow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(SessionStateLocalKey, flow.State())
		return c.Next()
	}
}

// SessionStateFromFiber reads the snapshot the middleware stored.
func SessionStateFromFiber(c *fiber.Ctx) (SessionState, bool) {
	raw := c.Locals(SessionStateLocalKey)
	if raw == nil {
		return SessionState{}, false
	}
	state, ok := raw.(SessionState)
	return state, ok
}
