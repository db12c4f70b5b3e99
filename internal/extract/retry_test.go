package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetchat/internal/core"
)

type scriptedParser struct {
	errs  []error
	calls int
}

func (s *scriptedParser) Extract(context.Context, string) ([]core.ExpenseEntry, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return []core.ExpenseEntry{{ID: "ok"}}, nil
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Jitter:      func(n int64) int64 { return 0 },
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &Error{Kind: KindUpstream, Timeout: true}, true},
		{"502", &Error{Kind: KindUpstream, Status: 502}, true},
		{"429", &Error{Kind: KindUpstream, Status: 429}, true},
		{"401", &Error{Kind: KindUpstream, Status: 401}, false},
		{"transport without status", &Error{Kind: KindUpstream}, false},
		{"malformed", &Error{Kind: KindMalformedOutput}, false},
		{"schema", &Error{Kind: KindSchemaViolation}, false},
		{"invalid input", &Error{Kind: KindInvalidInput}, false},
		{"plain", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	p := &scriptedParser{errs: []error{
		&Error{Kind: KindUpstream, Status: 503},
		&Error{Kind: KindUpstream, Timeout: true},
	}}

	entries, err := WithRetry(p, fastPolicy(3)).Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 3, p.calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	last := &Error{Kind: KindUpstream, Status: 500}
	p := &scriptedParser{errs: []error{&Error{Kind: KindUpstream, Status: 502}, last, last}}

	_, err := WithRetry(p, fastPolicy(2)).Extract(context.Background(), "x")
	assert.Same(t, last, err)
	assert.Equal(t, 2, p.calls)
}

func TestWithRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	p := &scriptedParser{errs: []error{&Error{Kind: KindSchemaViolation, Schema: &SchemaError{}}}}

	_, err := WithRetry(p, fastPolicy(5)).Extract(context.Background(), "x")
	assert.Equal(t, KindSchemaViolation, KindOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	p := &scriptedParser{errs: []error{
		&Error{Kind: KindUpstream, Status: 503},
		&Error{Kind: KindUpstream, Status: 503},
	}}
	policy := fastPolicy(5)
	policy.BaseDelay = time.Hour
	policy.MaxDelay = time.Hour
	policy.Jitter = func(n int64) int64 { return n - 1 }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WithRetry(p, policy).Extract(ctx, "x")
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		Jitter:    func(n int64) int64 { return n - 1 },
	}
	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.backoff(3))
	assert.Equal(t, time.Second, p.backoff(5))
	assert.Equal(t, time.Second, p.backoff(30))
}
