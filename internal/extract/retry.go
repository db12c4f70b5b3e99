package extract

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"budgetchat/internal/core"
	"budgetchat/internal/log"
)

// RetryPolicy bounds retries of transient upstream failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter returns a value in [0, n). Defaults to rand.Int64N.
	Jitter func(n int64) int64
	Logger *log.Logger
}

// DefaultRetryPolicy retries twice with 500ms doubling delay capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

type retryingParser struct {
	next   Parser
	policy RetryPolicy
}

// WithRetry wraps p so that upstream timeouts, 429s and 5xx responses are
// retried. Every other error is returned after the first attempt.
func WithRetry(p Parser, policy RetryPolicy) Parser {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	if policy.Jitter == nil {
		policy.Jitter = rand.Int64N
	}
	if policy.Logger == nil {
		policy.Logger = log.Discard()
	}
	return &retryingParser{next: p, policy: policy}
}

func (r *retryingParser) Extract(ctx context.Context, text string) ([]core.ExpenseEntry, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		entries, err := r.next.Extract(ctx, text)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts || !Retryable(err) {
			break
		}

		delay := r.policy.backoff(attempt)
		r.policy.Logger.WarnContext(ctx, "Retrying extraction",
			log.FieldAttempt, attempt,
			log.FieldError, err.Error(),
			"delay", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// backoff returns a full-jitter delay for the given 1-based attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return time.Duration(p.Jitter(int64(d)) + 1)
}

// Retryable reports whether err is a transient upstream failure.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindUpstream {
		return false
	}
	if e.Timeout {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}
