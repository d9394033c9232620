package authflow_test

import (
	"sync"
	"testing"

	authflow "github.com/goliatone/go-authflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	ready := authflow.SessionState{
		Identity: confirmedIdentity("user-1", "alice@example.com"),
		Profile:  &authflow.Profile{ID: "user-1"},
	}

	tests := []struct {
		name     string
		state    authflow.SessionState
		area     authflow.Area
		redirect bool
		target   authflow.Route
	}{
		{
			name:  "loading never redirects",
			state: authflow.SessionState{IsLoading: true},
			area:  authflow.AreaProtected,
		},
		{
			name:     "signed out on protected screen goes to login",
			state:    authflow.SessionState{},
			area:     authflow.AreaProtected,
			redirect: true,
			target:   authflow.RouteLogin,
		},
		{
			name:  "signed out on auth screen stays",
			state: authflow.SessionState{},
			area:  authflow.AreaAuth,
		},
		{
			name:  "unconfirmed identity stays put",
			state: authflow.SessionState{Identity: unconfirmedIdentity("user-1", "alice@example.com")},
			area:  authflow.AreaAuth,
		},
		{
			name:  "confirmed without profile waits",
			state: authflow.SessionState{Identity: confirmedIdentity("user-1", "alice@example.com")},
			area:  authflow.AreaAuth,
		},
		{
			name:     "ready session on auth screen goes to team selection",
			state:    ready,
			area:     authflow.AreaAuth,
			redirect: true,
			target:   authflow.RouteTeamSelection,
		},
		{
			name:  "ready session on protected screen stays",
			state: ready,
			area:  authflow.AreaProtected,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := authflow.Decide(tc.state, tc.area)
			assert.Equal(t, tc.redirect, decision.Redirect)
			if tc.redirect {
				assert.Equal(t, tc.target, decision.Target)
			}
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestGateIssuesOneRedirectPerTransition(t *testing.T) {
	redirector := &captureRedirector{}
	gate := authflow.NewNavigationGate(redirector, authflow.WithGateLogger(silentLogger{}))

	ready := authflow.SessionState{
		Identity: confirmedIdentity("user-1", "alice@example.com"),
		Profile:  &authflow.Profile{ID: "user-1"},
	}

	first := gate.Apply(ready, authflow.AreaAuth)
	second := gate.Apply(ready, authflow.AreaAuth)

	assert.True(t, first.Redirect)
	assert.False(t, second.Redirect, "second apply on the same transition is suppressed")
	assert.Len(t, redirector.calls(), 1)
}

func TestGateConcurrentApply(t *testing.T) {
	redirector := &captureRedirector{}
	gate := authflow.NewNavigationGate(redirector, authflow.WithGateLogger(silentLogger{}))

	ready := authflow.SessionState{
		Identity: confirmedIdentity("user-1", "alice@example.com"),
		Profile:  &authflow.Profile{ID: "user-1"},
	}

	// mount-time check and event callback racing for the same transition
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Apply(ready, authflow.AreaAuth)
		}()
	}
	wg.Wait()

	assert.Len(t, redirector.calls(), 1, "exactly one redirect across concurrent callers")
}

func TestGateGuardResetsOnNewTransition(t *testing.T) {
	redirector := &captureRedirector{}
	gate := authflow.NewNavigationGate(redirector, authflow.WithGateLogger(silentLogger{}))

	alice := authflow.SessionState{
		Identity: confirmedIdentity("user-1", "alice@example.com"),
		Profile:  &authflow.Profile{ID: "user-1"},
	}
	gate.Apply(alice, authflow.AreaAuth)
	require.Len(t, redirector.calls(), 1)

	t.Run("identity change opens a new transition", func(t *testing.T) {
		bob := authflow.SessionState{
			Identity: confirmedIdentity("user-2", "bob@example.com"),
			Profile:  &authflow.Profile{ID: "user-2"},
		}
		decision := gate.Apply(bob, authflow.AreaAuth)
		assert.True(t, decision.Redirect)
		assert.Len(t, redirector.calls(), 2)
	})

	t.Run("sign out clears the guard", func(t *testing.T) {
		gate.ClearGuard()

		decision := gate.Apply(authflow.SessionState{}, authflow.AreaProtected)
		assert.True(t, decision.Redirect)
		assert.Equal(t, authflow.RouteLogin, decision.Target)
	})
}

func TestGateCustomRoutes(t *testing.T) {
	redirector := &captureRedirector{}
	gate := authflow.NewNavigationGate(redirector,
		authflow.WithGateLogger(silentLogger{}),
		authflow.WithGateRoutes("/signin", "/workspaces"),
	)

	decision := gate.Apply(authflow.SessionState{}, authflow.AreaProtected)
	require.True(t, decision.Redirect)
	assert.Equal(t, authflow.Route("/signin"), decision.Target)
}

func TestGateRecordsRedirectActivity(t *testing.T) {
	sink := &captureSink{}
	gate := authflow.NewNavigationGate(&captureRedirector{},
		authflow.WithGateLogger(silentLogger{}),
		authflow.WithGateActivitySink(sink),
	)

	gate.Apply(authflow.SessionState{}, authflow.AreaProtected)

	events := sink.byType(authflow.ActivityEventRedirectIssued)
	require.Len(t, events, 1)
	assert.Equal(t, string(authflow.RouteLogin), events[0].Metadata["target"])
}
