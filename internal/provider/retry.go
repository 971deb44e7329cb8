package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"aventura/internal/domain"
)

// retryPolicy is the fixed backoff schedule for Provider calls (spec §7):
// base 500ms, cap 8s, jitter 0-250ms, at most 5 attempts in total (the
// first call plus up to 4 retries; maxRetries is passed to WithMaxTries,
// which counts attempts). SchemaParseError on
// classification reuses this same schedule (internal/classifier).
var retryPolicy = struct {
	base       time.Duration
	cap        time.Duration
	maxRetries uint
}{
	base:       500 * time.Millisecond,
	cap:        8 * time.Second,
	maxRetries: 5,
}

// newBackOff builds the exponential backoff generator the retry policy
// shares across Provider and Classifier retries.
func newBackOff() func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = retryPolicy.base
		b.MaxInterval = retryPolicy.cap
		// 0-250ms jitter on top of the exponential curve; RandomizationFactor
		// is a fraction of the current interval rather than a fixed band, so
		// we cap it conservatively relative to the base interval.
		b.RandomizationFactor = float64(250*time.Millisecond) / float64(retryPolicy.base)
		return b
	}
}

// shouldRetry classifies a Provider error per spec §7: ProviderNetworkError
// and 5xx ProviderHTTPError are retryable; everything else (including 4xx)
// is not.
func shouldRetry(err error) bool {
	var netErr *domain.ProviderNetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *domain.ProviderHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return false
}

// withRetry executes fn, retrying per retryPolicy when shouldRetry(err) is
// true. Non-retryable errors return immediately.
func withRetry[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		result, err := fn(ctx)
		if err != nil && !shouldRetry(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff()()),
		backoff.WithMaxTries(retryPolicy.maxRetries),
	)
}
