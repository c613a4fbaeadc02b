package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptionalDisabledIsPassThrough(t *testing.T) {
	w := NewOptional("planner", Overrides{})
	require.Nil(t, w)

	got, err := w.Execute(context.Background(), func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, gobreaker.StateClosed, w.State())
	assert.False(t, w.IsOpen())
}

func TestWrapperOpensAfterFailures(t *testing.T) {
	w := NewOptional("oauth-provider", Overrides{Enabled: true, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := w.Execute(context.Background(), func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())
	calls := 0
	_, err := w.Execute(context.Background(), func() (interface{}, error) {
		calls++
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOptional("planner", Overrides{Enabled: true}).Execute(ctx, func() (interface{}, error) {
		t.Fatal("fn must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
