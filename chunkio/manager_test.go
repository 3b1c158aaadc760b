package chunkio

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/evoplatform/sdk-go/retry"
)

// transferData is the 15-byte payload shared by every test, split into 4-byte
// chunks: [0:4) [4:8) [8:12) [12:15).
var transferData = []byte("ABCDEFGHIJKLMNO")

// expiringError simulates a signed URL that has expired. Recover re-fetches
// it by calling back into the owning fakeIO's renew, which either clears the
// expiry (renewFails == false) or reports the fetch itself failed.
type expiringError struct {
	io *fakeIO
}

func (e *expiringError) Error() string { return "chunkio: signed url expired" }

func (e *expiringError) Recover(ctx context.Context) (bool, error) {
	return e.io.renew(ctx)
}

// fakeIO is a combined Source/Destination test double with two independent
// ways to go bad:
//   - expiresAfter: raises once calls (since the last successful renew)
//     reaches this count, and renew clears it so the cycle can repeat.
//     -1 disables it.
//   - successLimit: once the lifetime count of successful calls reaches
//     this, every later call raises permanently — renew may report success
//     but never actually restores usability. -1 disables it.
type fakeIO struct {
	mu           sync.Mutex
	content      []byte
	size         int64
	expiresAfter int
	successLimit int
	renewFails   bool

	calls          int
	totalSuccesses int
	renewCalls     int
}

func newFakeIO(content []byte, expiresAfter int) *fakeIO {
	return &fakeIO{
		content:      append([]byte(nil), content...),
		size:         int64(len(content)),
		expiresAfter: expiresAfter,
		successLimit: -1,
	}
}

func (f *fakeIO) checkExpiry() error {
	if f.successLimit >= 0 && f.totalSuccesses >= f.successLimit {
		return &expiringError{io: f}
	}

	if f.expiresAfter >= 0 && f.calls == f.expiresAfter {
		return &expiringError{io: f}
	}

	f.calls++
	f.totalSuccesses++

	return nil
}

func (f *fakeIO) Size(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.size, nil
}

func (f *fakeIO) ReadChunk(_ context.Context, offset, size int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkExpiry(); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	copy(data, f.content[offset:offset+size])

	return data, nil
}

func (f *fakeIO) WriteChunk(_ context.Context, offset int64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkExpiry(); err != nil {
		return err
	}

	if need := offset + int64(len(data)); need > int64(len(f.content)) {
		grown := make([]byte, need)
		copy(grown, f.content)
		f.content = grown
	}

	copy(f.content[offset:], data)

	if need := offset + int64(len(data)); need > f.size {
		f.size = need
	}

	return nil
}

func (f *fakeIO) renew(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.renewCalls++

	if f.renewFails {
		return false, errors.New("fakeIO: renew failed")
	}

	f.calls = 0

	return true, nil
}

func (f *fakeIO) RenewCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.renewCalls
}

func (f *fakeIO) Content() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]byte(nil), f.content[:f.size]...)
}

// countingSource wraps a Source to count ReadChunk invocations, used by the
// resume test to confirm only the outstanding chunks are re-read.
type countingSource struct {
	Source
	reads int
}

func (c *countingSource) ReadChunk(ctx context.Context, offset, size int64) ([]byte, error) {
	c.reads++
	return c.Source.ReadChunk(ctx, offset, size)
}

// failOnceDestination fails its first WriteChunk with a plain,
// non-recoverable error and succeeds afterward.
type failOnceDestination struct {
	mu      sync.Mutex
	content []byte
	failed  bool
}

func (d *failOnceDestination) WriteChunk(_ context.Context, offset int64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.failed {
		d.failed = true
		return errors.New("destination: disk full")
	}

	if need := offset + int64(len(data)); need > int64(len(d.content)) {
		grown := make([]byte, need)
		copy(grown, d.content)
		d.content = grown
	}

	copy(d.content[offset:], data)

	return nil
}

// blockingSource waits for ctx to finish and returns its error, used to
// deterministically exercise prompt cancellation regardless of the worker
// select's race between the jobs channel and ctx.Done().
type blockingSource struct{}

func (blockingSource) Size(context.Context) (int64, error) { return int64(len(transferData)), nil }

func (blockingSource) ReadChunk(ctx context.Context, _, _ int64) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestManager(maxAttempts, maxWorkers int) *Manager {
	r := retry.New(maxAttempts, retry.Linear{Factor: 0})
	return NewManager(r, trackerChunkSize, maxWorkers, nil)
}

func TestManager_RunToCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(transferData, -1)
	destination := newFakeIO(nil, -1)
	manager := newTestManager(3, 1)

	err := manager.Run(context.Background(), source, destination)
	require.NoError(t, err)

	assert.True(t, manager.IsComplete())
	assert.Equal(t, float64(1), manager.Progress())
	assert.Equal(t, transferData, destination.Content())
}

func TestManager_RecoversFromTransientSourceExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(transferData, 2)
	destination := newFakeIO(nil, -1)
	manager := newTestManager(5, 1)

	err := manager.Run(context.Background(), source, destination)
	require.NoError(t, err)

	assert.True(t, manager.IsComplete())
	assert.Equal(t, transferData, destination.Content())
	assert.Equal(t, 1, source.RenewCalls())
}

func TestManager_RecoversFromTransientDestinationExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(transferData, -1)
	destination := newFakeIO(nil, 2)
	manager := newTestManager(5, 1)

	err := manager.Run(context.Background(), source, destination)
	require.NoError(t, err)

	assert.True(t, manager.IsComplete())
	assert.Equal(t, transferData, destination.Content())
	assert.Equal(t, 1, destination.RenewCalls())
}

func TestManager_RetryExhaustedLeavesTrackerResumable(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(transferData, -1)
	source.successLimit = 2 // chunks 0 and 1 succeed, then permanently broken
	destination := newFakeIO(nil, -1)
	manager := newTestManager(3, 1)

	err := manager.Run(context.Background(), source, destination)
	require.Error(t, err)

	var exhausted *retry.RetryExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	assert.False(t, manager.IsComplete())
	assert.Equal(t, 0.5, manager.Progress())
	assert.Equal(t, transferData[:8], destination.Content())
	assert.Equal(t, 3, source.RenewCalls())
}

func TestManager_ResumeAfterRetryExhaustion(t *testing.T) {
	defer goleak.VerifyNone(t)

	flakySource := newFakeIO(transferData, -1)
	flakySource.successLimit = 2
	destination := newFakeIO(nil, -1)
	manager := newTestManager(3, 1)

	err := manager.Run(context.Background(), flakySource, destination)

	var exhausted *retry.RetryExhausted
	require.ErrorAs(t, err, &exhausted)
	require.False(t, manager.IsComplete())
	require.Equal(t, transferData[:8], destination.Content())

	freshSource := &countingSource{Source: newFakeIO(transferData, -1)}

	err = manager.Run(context.Background(), freshSource, destination)
	require.NoError(t, err)

	assert.True(t, manager.IsComplete())
	assert.Equal(t, transferData, destination.Content())
	assert.Equal(t, 2, freshSource.reads) // only the two chunks left outstanding
}

func TestManager_RecoverFailureAbortsWithoutWrappingExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(transferData, 2)
	source.renewFails = true
	destination := newFakeIO(nil, -1)
	manager := newTestManager(5, 1)

	err := manager.Run(context.Background(), source, destination)
	require.Error(t, err)
	assert.Equal(t, "fakeIO: renew failed", err.Error())

	var exhausted *retry.RetryExhausted
	assert.False(t, errors.As(err, &exhausted))

	assert.False(t, manager.IsComplete())
	assert.Equal(t, 0.5, manager.Progress())
	assert.Equal(t, transferData[:8], destination.Content())
	assert.Equal(t, 1, source.RenewCalls())
}

func TestManager_NonRecoverableErrorPropagatesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(transferData, -1)
	destination := &failOnceDestination{}
	manager := newTestManager(5, 1)

	err := manager.Run(context.Background(), source, destination)
	require.Error(t, err)
	assert.Equal(t, "destination: disk full", err.Error())

	var exhausted *retry.RetryExhausted
	assert.False(t, errors.As(err, &exhausted))
}

func TestManager_ZeroByteTransferCompletesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(nil, -1)
	destination := newFakeIO(nil, -1)
	manager := newTestManager(3, 1)

	err := manager.Run(context.Background(), source, destination)
	require.NoError(t, err)
	assert.True(t, manager.IsComplete())
	assert.Equal(t, float64(0), manager.Progress())
}

func TestManager_CancellationAbortsWorkersPromptly(t *testing.T) {
	defer goleak.VerifyNone(t)

	destination := newFakeIO(nil, -1)
	manager := newTestManager(3, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := manager.Run(ctx, blockingSource{}, destination)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_MultipleWorkersCompleteDisjointChunks(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := newFakeIO(transferData, -1)
	destination := newFakeIO(nil, -1)
	manager := newTestManager(3, 4)

	done := make(chan error, 1)
	go func() {
		done <- manager.Run(context.Background(), source, destination)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager.Run did not complete")
	}

	assert.True(t, manager.IsComplete())
	assert.True(t, bytes.Equal(transferData, destination.Content()))
}
