package authflow_test

import (
	"context"
	"testing"

	authflow "github.com/goliatone/go-authflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivitySinkFunc(t *testing.T) {
	var got authflow.ActivityEvent
	sink := authflow.ActivitySinkFunc(func(ctx context.Context, event authflow.ActivityEvent) error {
		got = event
		return nil
	})

	err := sink.Record(context.Background(), authflow.ActivityEvent{
		EventType: authflow.ActivityEventSignedIn,
		UserID:    "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, authflow.ActivityEventSignedIn, got.EventType)
	assert.Equal(t, "user-1", got.UserID)
}

func TestActivitySinkFuncNil(t *testing.T) {
	var sink authflow.ActivitySinkFunc
	assert.NoError(t, sink.Record(context.Background(), authflow.ActivityEvent{}))
}
