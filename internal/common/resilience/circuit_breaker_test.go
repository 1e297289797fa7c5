package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/safecheck/internal/common/clock"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

var errDown = errors.New("connection refused")

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func newTestBreaker(threshold int32) (*CircuitBreaker, *clock.MockClock) {
	clk := clock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:  threshold,
		Timeout:    time.Second,
		ResetAfter: 30 * time.Second,
		Name:       "test",
		Clock:      clk,
	}), clk
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(2)

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Call(context.Background(), fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, commonerrors.ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_CallerErrorsDoNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(1)

	for i := 0; i < 3; i++ {
		err := cb.Call(context.Background(), func(context.Context) error { return commonerrors.ErrUserNotFound })
		require.ErrorIs(t, err, commonerrors.ErrUserNotFound)
	}
	require.ErrorIs(t, cb.Call(context.Background(), func(context.Context) error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2)

	_ = cb.Call(context.Background(), fail)
	require.NoError(t, cb.Call(context.Background(), succeed))
	_ = cb.Call(context.Background(), fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		cb, clk := newTestBreaker(1)
		_ = cb.Call(context.Background(), fail)
		require.Equal(t, StateOpen, cb.State())

		clk.Advance(30 * time.Second)
		assert.Equal(t, StateHalfOpen, cb.State())

		require.NoError(t, cb.Call(context.Background(), succeed))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb, clk := newTestBreaker(3)
		for i := 0; i < 3; i++ {
			_ = cb.Call(context.Background(), fail)
		}
		clk.Advance(31 * time.Second)

		require.ErrorIs(t, cb.Call(context.Background(), fail), errDown)
		assert.Equal(t, StateOpen, cb.State())

		clk.Advance(10 * time.Second)
		assert.ErrorIs(t, cb.Call(context.Background(), succeed), commonerrors.ErrCircuitOpen)
	})
}

func TestCircuitBreaker_SingleTrialInFlight(t *testing.T) {
	cb, clk := newTestBreaker(1)
	_ = cb.Call(context.Background(), fail)
	clk.Advance(time.Minute)

	err := cb.Call(context.Background(), func(ctx context.Context) error {
		return cb.Call(ctx, succeed)
	})
	assert.ErrorIs(t, err, commonerrors.ErrCircuitOpen)
}

func TestCircuitBreaker_CallTimeout(t *testing.T) {
	cb, _ := newTestBreaker(5)

	err := cb.Call(context.Background(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)
		return nil
	})
	assert.NoError(t, err)
}
