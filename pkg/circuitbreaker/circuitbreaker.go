// Package circuitbreaker wraps sony/gobreaker for guarding payout rail calls.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// State represents the circuit breaker state
type State gobreaker.State

// String returns the string representation of the state
func (s State) String() string {
	return gobreaker.State(s).String()
}

// State constants
const (
	StateClosed   State = State(gobreaker.StateClosed)
	StateHalfOpen State = State(gobreaker.StateHalfOpen)
	StateOpen     State = State(gobreaker.StateOpen)
)

// Config holds circuit breaker configuration
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	// IsFailure decides whether an error counts toward tripping the
	// breaker. Rejections of a single payout (bad recipient, limits)
	// say nothing about rail health and should not open the circuit.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker wraps gobreaker.CircuitBreaker
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a new CircuitBreaker with the given config
func New(cfg Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	if cfg.IsFailure != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !cfg.IsFailure(err)
		}
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from gobreaker.State, to gobreaker.State) {
			cfg.OnStateChange(name, State(from), State(to))
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs the given function through the circuit breaker (context-aware, error-only)
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return nil, fn()
		}
	})
	return err
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() State {
	return State(c.cb.State())
}

// IsOpen reports whether err came from an open circuit rather than the
// wrapped call itself.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
