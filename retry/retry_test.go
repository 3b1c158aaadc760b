package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// recordingSleep captures every requested delay instead of actually
// sleeping, so the exact sleep sequence can be asserted without slowing
// down the test suite.
func recordingSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
}

var errAlways = errors.New("always fails")

func TestRetry_BudgetExhausted(t *testing.T) {
	var sleeps []time.Duration

	r := New(5, Incremental{Factor: 1})
	r.sleepFn = recordingSleep(&sleeps)

	err := r.Do(context.Background(), nil, func(context.Context, *Handle) error {
		return errAlways
	})

	var exhausted *RetryExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second,
	}, sleeps)
}

func TestRetry_ForwardProgressReset(t *testing.T) {
	var sleeps []time.Duration

	r := New(5, Incremental{Factor: 1})
	r.sleepFn = recordingSleep(&sleeps)

	calls := 0
	err := r.Do(context.Background(), nil, func(_ context.Context, h *Handle) error {
		calls++
		if calls == 5 {
			h.ResetCounter()
		}

		return errAlways
	})

	var exhausted *RetryExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second,
		1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second,
	}, sleeps)
}

func TestRetry_SucceedsWithoutExhausting(t *testing.T) {
	var sleeps []time.Duration

	r := New(5, Linear{Factor: 1})
	r.sleepFn = recordingSleep(&sleeps)

	calls := 0
	err := r.Do(context.Background(), nil, func(context.Context, *Handle) error {
		calls++
		if calls < 3 {
			return errAlways
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeps, 2)
}

func TestRetry_SuppressPredicateRejectsImmediately(t *testing.T) {
	r := New(5, Linear{Factor: 1})
	r.sleepFn = recordingSleep(&[]time.Duration{})

	otherErr := errors.New("fatal, not suppressible")

	err := r.Do(context.Background(), func(error) bool { return false }, func(context.Context, *Handle) error {
		return otherErr
	})

	assert.Same(t, otherErr, err)
}

func TestRetry_ContextCancelledDuringBackoffPropagates(t *testing.T) {
	r := New(5, Linear{Factor: 10}) // long sleep so cancellation wins

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, nil, func(context.Context, *Handle) error {
		return errAlways
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := New(3, Linear{Factor: 0})

	_ = r.Do(context.Background(), nil, func(context.Context, *Handle) error {
		return nil
	})
}

func TestBackoffPolicies(t *testing.T) {
	tests := []struct {
		name    string
		policy  BackoffPolicy
		attempt int
		want    time.Duration
	}{
		{"linear", Linear{Factor: 2}, 1, 2 * time.Second},
		{"linear ignores attempt", Linear{Factor: 2}, 9, 2 * time.Second},
		{"incremental", Incremental{Factor: 1}, 3, 3 * time.Second},
		{"exponential", Exponential{Factor: 1}, 0, 1 * time.Second},
		{"exponential grows", Exponential{Factor: 1}, 3, 8 * time.Second},
		{"negative factor is non-positive", Incremental{Factor: -1}, 3, 0},
		{"clamped to max", Incremental{Factor: 10, Max: 5 * time.Second}, 3, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}
