package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRailDown = errors.New("rail down")

func newTestBreaker(threshold uint32, isFailure func(error) bool) *CircuitBreaker {
	return New(Config{
		Name:             "test",
		FailureThreshold: threshold,
		Timeout:          time.Minute,
		IsFailure:        isFailure,
	})
}

func TestExecutePassesThroughResult(t *testing.T) {
	cb := newTestBreaker(3, nil)

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)

	err = cb.Execute(context.Background(), func() error { return errRailDown })
	assert.ErrorIs(t, err, errRailDown)
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(3, nil)

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return errRailDown })
		assert.ErrorIs(t, err, errRailDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.Equal(t, 0, calls, "open circuit must not invoke the call")
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	cb := newTestBreaker(3, nil)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return errRailDown })
	}
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return errRailDown })
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestIsFailurePredicateExcludesErrors(t *testing.T) {
	rejected := errors.New("recipient rejected")
	cb := newTestBreaker(2, func(err error) bool {
		return !errors.Is(err, rejected)
	})

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func() error { return rejected })
		assert.ErrorIs(t, err, rejected)
	}
	assert.Equal(t, StateClosed, cb.State(), "excluded errors must not trip the breaker")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func() error { return errRailDown })
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	cb := newTestBreaker(3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestIsOpen(t *testing.T) {
	assert.False(t, IsOpen(nil))
	assert.False(t, IsOpen(errRailDown))

	cb := newTestBreaker(1, nil)
	_ = cb.Execute(context.Background(), func() error { return errRailDown })
	err := cb.Execute(context.Background(), func() error { return nil })
	assert.True(t, IsOpen(err))
}
