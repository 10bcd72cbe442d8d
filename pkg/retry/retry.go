package retry

import (
	"context"
	"time"

	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 50 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Policy controls how many times a retryable operation is attempted.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration

	// OnRetry, when set, is invoked once per retried attempt.
	OnRetry func()
}

// DefaultPolicy returns the policy used when a caller passes a zero value.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaximumBackoff: defaultMaximumBackoff,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt cap is reached. Only errors whose code metadata marks them
// retryable are retried; business-rule rejections surface immediately.
// fn must be idempotent: a retry after an ambiguous failure may re-apply it.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	policy = policy.normalized()

	attempts := 0
	backoff := policy.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "context done before attempt")
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= policy.MaxAttempts || !pkgerrors.IsRetryable(err) {
			return err
		}
		if policy.OnRetry != nil {
			policy.OnRetry()
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, ctx.Err(), "context done during backoff")
		case <-timer.C:
		}
		timer.Stop()

		backoff *= 2
		if backoff > policy.MaximumBackoff {
			backoff = policy.MaximumBackoff
		}
	}
}
