// Package retry implements the attempt/backoff harness shared by every
// component that must tolerate transient failures: the transport, the
// chunked I/O engine, the storage block-list commit, and the job client's
// poll loop. The public shape mirrors an attempt-handle iterator: each call into
// the guarded operation receives a *Handle that exposes the prior outcome
// and a ResetCounter method so long-running callers (a multi-chunk
// transfer) can declare forward progress without losing the backoff policy.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/evoplatform/sdk-go/internal/metrics"
)

// Retry drives a sequence of attempts under a backoff policy. The zero
// value is not usable; construct with New.
type Retry struct {
	MaxAttempts int
	Backoff     BackoffPolicy

	sleepFn func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	attempt int
}

// New returns a Retry with the given attempt budget and backoff policy.
func New(maxAttempts int, backoff BackoffPolicy) *Retry {
	return &Retry{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		sleepFn:     sleepCtx,
		attempt:     1,
	}
}

// Handle represents one attempt. It is passed to the callback given to Do
// and exposes the outcome of the attempt currently in progress along with
// ResetCounter, the mechanism by which a caller declares forward progress.
type Handle struct {
	retry *Retry
	err   error
}

// Exception returns the error from the most recently completed attempt, or
// nil if the attempt succeeded (or none has completed yet).
func (h *Handle) Exception() error { return h.err }

// Succeeded reports whether the most recent attempt succeeded.
func (h *Handle) Succeeded() bool { return h.err == nil }

// Failed reports whether the most recent attempt failed.
func (h *Handle) Failed() bool { return h.err != nil }

// ResetCounter returns the shared attempt counter to 1 without losing the
// backoff policy. This is the single most important operational invariant
// for long transfers: a worker that makes forward progress on one chunk
// must not let that progress be erased by an earlier consecutive failure.
func (h *Handle) ResetCounter() { h.retry.ResetCounter() }

// ResetCounter returns the attempt counter to 1.
func (r *Retry) ResetCounter() {
	r.mu.Lock()
	r.attempt = 1
	r.mu.Unlock()
}

// Attempt returns the current 1-based attempt number.
func (r *Retry) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.attempt
}

// Fail records one failed attempt. If the budget still has room, it sleeps
// according to the backoff policy, advances the counter, and returns nil so
// the caller should retry. If the budget is exhausted, it returns
// ErrBudgetExhausted without sleeping. A context error during the sleep is
// returned unwrapped.
func (r *Retry) Fail(ctx context.Context, _ error) error {
	r.mu.Lock()
	current := r.attempt
	r.mu.Unlock()

	if current >= r.MaxAttempts {
		metrics.RetryAttempts.WithLabelValues("exhausted").Inc()
		return ErrBudgetExhausted
	}

	metrics.RetryAttempts.WithLabelValues("retried").Inc()

	if delay := r.Backoff.Delay(current); delay > 0 {
		if err := r.sleepFn(ctx, delay); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.attempt++
	r.mu.Unlock()

	return nil
}

// Do executes fn repeatedly until it returns nil, returns an error that
// suppress rejects, or the attempt budget is exhausted. suppress classifies
// which errors are eligible for retry; nil suppresses every error. On
// success Do returns nil immediately; it does not call ResetCounter itself,
// since a single completed Do call is considered one finished logical
// operation, not a step in a longer-running transfer.
func (r *Retry) Do(ctx context.Context, suppress func(error) bool, fn func(ctx context.Context, h *Handle) error) error {
	h := &Handle{retry: r}

	var causes []error

	for {
		err := fn(ctx, h)
		h.err = err

		if err == nil {
			metrics.RetryAttempts.WithLabelValues("succeeded").Inc()
			return nil
		}

		if suppress != nil && !suppress(err) {
			return err
		}

		causes = append(causes, err)

		if ferr := r.Fail(ctx, err); ferr != nil {
			if errors.Is(ferr, ErrBudgetExhausted) {
				return &RetryExhausted{Attempts: r.Attempt(), Cause: errors.Join(causes...)}
			}

			return ferr
		}
	}
}

// sleepCtx sleeps for d or returns ctx.Err() if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
