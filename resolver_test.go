package authflow_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	authflow "github.com/goliatone/go-authflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverFetchOnce(t *testing.T) {
	store := newFakeProfileStore()
	resolver := authflow.NewProfileResolver(store, authflow.WithResolverLogger(silentLogger{}))

	t.Run("found", func(t *testing.T) {
		store.put(&authflow.Profile{ID: "user-1", Email: "alice@example.com"})

		profile, err := resolver.FetchOnce(context.Background(), "user-1")
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.Equal(t, "alice@example.com", profile.Email)
	})

	t.Run("not found is nil not error", func(t *testing.T) {
		profile, err := resolver.FetchOnce(context.Background(), "missing")
		assert.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("transport failure surfaces as network error", func(t *testing.T) {
		store.failTimes(1)

		_, err := resolver.FetchOnce(context.Background(), "user-1")
		require.Error(t, err)
		assert.True(t, authflow.IsNetworkFailure(err))
	})
}

func TestResolverPollingResolves(t *testing.T) {
	store := newFakeProfileStore()
	sink := &captureSink{}
	resolver := authflow.NewProfileResolver(store,
		authflow.WithResolverInterval(5*time.Millisecond),
		authflow.WithResolverLogger(silentLogger{}),
		authflow.WithResolverActivitySink(sink),
	)

	resolved := make(chan *authflow.Profile, 1)
	handle := resolver.StartPolling(context.Background(), "alice@example.com", func(p *authflow.Profile) {
		resolved <- p
	})
	require.NotNil(t, handle)
	assert.Equal(t, "alice@example.com", handle.Email())

	// let a few empty ticks pass before the row appears
	time.Sleep(15 * time.Millisecond)
	store.put(&authflow.Profile{ID: "user-1", Email: "alice@example.com"})

	select {
	case profile := <-resolved:
		assert.Equal(t, "user-1", profile.ID)
	case <-time.After(time.Second):
		t.Fatal("polling never resolved")
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("polling loop never exited")
	}

	assert.Nil(t, resolver.Active(), "handle clears after auto-resolution")
	assert.Len(t, sink.byType(authflow.ActivityEventProfileResolved), 1)
}

func TestResolverSingleActiveHandle(t *testing.T) {
	store := newFakeProfileStore()
	resolver := authflow.NewProfileResolver(store,
		authflow.WithResolverInterval(5*time.Millisecond),
		authflow.WithResolverLogger(silentLogger{}),
	)

	first := resolver.StartPolling(context.Background(), "alice@example.com", nil)
	second := resolver.StartPolling(context.Background(), "bob@example.com", nil)

	assert.Same(t, first, second, "second start is a no-op returning the active handle")
	assert.Equal(t, "alice@example.com", second.Email())

	first.Cancel()
	<-first.Done()
}

func TestResolverCancelIdempotent(t *testing.T) {
	store := newFakeProfileStore()
	resolver := authflow.NewProfileResolver(store,
		authflow.WithResolverInterval(5*time.Millisecond),
		authflow.WithResolverLogger(silentLogger{}),
	)

	handle := resolver.StartPolling(context.Background(), "alice@example.com", nil)

	handle.Cancel()
	handle.Cancel()
	resolver.Cancel(handle)
	resolver.CancelActive() // nil-safe even once the loop cleared itself

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled loop never exited")
	}

	assert.Nil(t, resolver.Active())
}

func TestResolverCancelDiscardsInFlightResult(t *testing.T) {
	store := newFakeProfileStore()
	store.put(&authflow.Profile{ID: "user-1", Email: "alice@example.com"})

	resolver := authflow.NewProfileResolver(store,
		authflow.WithResolverInterval(time.Millisecond),
		authflow.WithResolverLogger(silentLogger{}),
	)

	var calls atomic.Int32
	handle := resolver.StartPolling(context.Background(), "alice@example.com", func(*authflow.Profile) {
		calls.Add(1)
	})

	handle.Cancel()
	<-handle.Done()

	// even if a tick was mid-flight when Cancel landed, the callback must
	// not fire afterwards
	time.Sleep(10 * time.Millisecond)
	final := calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, final, calls.Load())
	assert.LessOrEqual(t, final, int32(1))
}

func TestResolverSwallowsTransportErrors(t *testing.T) {
	store := newFakeProfileStore()
	store.failTimes(3)

	resolver := authflow.NewProfileResolver(store,
		authflow.WithResolverInterval(2*time.Millisecond),
		authflow.WithResolverLogger(silentLogger{}),
	)

	resolved := make(chan *authflow.Profile, 1)
	resolver.StartPolling(context.Background(), "alice@example.com", func(p *authflow.Profile) {
		resolved <- p
	})

	// the row shows up after the failing ticks; the loop must still be alive
	time.Sleep(10 * time.Millisecond)
	store.put(&authflow.Profile{ID: "user-1", Email: "alice@example.com"})

	select {
	case profile := <-resolved:
		assert.Equal(t, "user-1", profile.ID)
	case <-time.After(time.Second):
		t.Fatal("loop died on transport errors instead of retrying")
	}

	assert.GreaterOrEqual(t, store.fetchCount(), 4)
}

func TestResolverContextCancellationStopsPolling(t *testing.T) {
	store := newFakeProfileStore()
	resolver := authflow.NewProfileResolver(store,
		authflow.WithResolverInterval(2*time.Millisecond),
		authflow.WithResolverLogger(silentLogger{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	handle := resolver.StartPolling(ctx, "alice@example.com", nil)

	cancel()

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("loop ignored context cancellation")
	}
}
