package payout

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy wraps provider calls with bounded retries and exponential
// backoff. Permanent and partial failures abort immediately; transient
// failures are retried until attempts are exhausted and the last observed
// error is surfaced. The policy only re-executes the remote call, never
// any local state mutation.
type RetryPolicy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	// OnRetry is called before each backoff sleep with the error that
	// triggered the retry. Optional.
	OnRetry func(err error, delay time.Duration)
}

// DefaultRetryPolicy returns the standard policy: three attempts with a
// two second base delay doubling each attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Initiate invokes provider.Initiate under the policy.
func (p RetryPolicy) Initiate(ctx context.Context, provider Provider, req Request) (string, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	operation := func() (string, error) {
		id, err := provider.Initiate(ctx, req)
		if err != nil {
			if !IsTransient(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return id, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(attempts),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(p.OnRetry))
	}

	id, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		return "", unwrapPermanent(err)
	}
	return id, nil
}

// unwrapPermanent strips the backoff marker so callers see the original
// classified error.
func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
