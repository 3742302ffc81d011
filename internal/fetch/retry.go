package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry pacing for transient download failures. The initial interval is short
// because most transient failures (connection resets, brief 503s) clear
// within a second; the cap keeps long outages from producing minute-long gaps
// between attempts.
const (
	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// newRetryPolicy builds the backoff schedule for one fetch. budget bounds the
// total elapsed time across all attempts; the context bounds each wait.
func newRetryPolicy(ctx context.Context, budget time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = budget
	return backoff.WithContext(b, ctx)
}

// classify wraps err as permanent unless it is a transient network failure.
// Checksum mismatches, non-retryable HTTP statuses, disk errors, and context
// cancellation all stop the retry loop immediately.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) && netErr.Retryable {
		return err
	}
	return backoff.Permanent(err)
}
