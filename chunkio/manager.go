package chunkio

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/evoplatform/sdk-go/internal/metrics"
	"github.com/evoplatform/sdk-go/retry"
)

// Manager drives a bounded worker pool that moves a transfer's bytes from a
// Source to a Destination in chunkSize strides. A Manager's Tracker is
// built once, on the first Run call, and persists across Run calls: if a
// run fails after partial progress, a later Run with a fresh Source and/or
// Destination resumes from the first incomplete chunk.
type Manager struct {
	ChunkSize  int64
	MaxWorkers int
	Retry      *retry.Retry
	Logger     *slog.Logger

	mu      sync.Mutex
	tracker *ChunkedIOTracker
}

// NewManager builds a Manager. r is the shared retry budget: every worker
// reports failures into the same Retry, and any chunk's success resets its
// counter, so forward progress by one worker is never erased by another
// worker's earlier failure.
func NewManager(r *retry.Retry, chunkSize int64, maxWorkers int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if maxWorkers < 1 {
		maxWorkers = 1
	}

	return &Manager{
		ChunkSize:  chunkSize,
		MaxWorkers: maxWorkers,
		Retry:      r,
		Logger:     logger,
	}
}

// IsComplete reports whether every chunk of the transfer has completed. It
// returns false if Run has not yet been called.
func (m *Manager) IsComplete() bool {
	m.mu.Lock()
	tracker := m.tracker
	m.mu.Unlock()

	return tracker != nil && tracker.IsComplete()
}

// Progress returns the fraction of chunks completed so far.
func (m *Manager) Progress() float64 {
	m.mu.Lock()
	tracker := m.tracker
	m.mu.Unlock()

	if tracker == nil {
		return 0
	}

	return tracker.Progress()
}

// Run transfers every incomplete chunk from source to destination using up
// to MaxWorkers concurrent workers. On the first call, the chunk plan is
// computed from source.Size(); subsequent calls reuse the existing plan,
// skipping chunks already marked complete. A cancelled ctx aborts
// outstanding workers promptly; in-flight results are discarded.
func (m *Manager) Run(ctx context.Context, source Source, destination Destination) error {
	tracker, err := m.trackerFor(ctx, source)
	if err != nil {
		return err
	}

	pending := tracker.Incomplete()
	if len(pending) == 0 {
		return nil
	}

	jobs := make(chan ChunkMetadata, len(pending))
	for _, job := range pending {
		jobs <- job
	}
	close(jobs)

	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < m.MaxWorkers; i++ {
		group.Go(func() error {
			return m.worker(groupCtx, source, destination, tracker, jobs)
		})
	}

	return group.Wait()
}

func (m *Manager) trackerFor(ctx context.Context, source Source) (*ChunkedIOTracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tracker != nil {
		return m.tracker, nil
	}

	totalSize, err := source.Size(ctx)
	if err != nil {
		return nil, err
	}

	m.tracker = NewChunkedIOTracker(totalSize, m.ChunkSize)

	return m.tracker, nil
}

func (m *Manager) worker(
	ctx context.Context, source Source, destination Destination, tracker *ChunkedIOTracker, jobs <-chan ChunkMetadata,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}

			if err := m.processChunk(ctx, source, destination, tracker, job); err != nil {
				return err
			}
		}
	}
}

// processChunk reads and writes one chunk, retrying in place against the
// shared budget when the failure is recoverable. A chunk's success resets
// the budget's attempt counter — forward progress on any one chunk keeps
// the whole transfer's retry allowance fresh.
func (m *Manager) processChunk(
	ctx context.Context, source Source, destination Destination, tracker *ChunkedIOTracker, job ChunkMetadata,
) error {
	var causes []error

	for {
		err := transferChunk(ctx, source, destination, job)
		if err == nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			tracker.SetComplete(job.ID)
			m.Retry.ResetCounter()
			metrics.ChunkBytesTransferred.WithLabelValues("write").Add(float64(job.Size))
			m.Logger.Debug("chunk transferred",
				slog.Int("chunk_id", job.ID),
				slog.String("size", humanize.Bytes(uint64(job.Size))),
				slog.Float64("progress", tracker.Progress()),
			)

			return nil
		}

		var chunkErr ChunkedIOError
		if !errors.As(err, &chunkErr) {
			return err
		}

		recovered, recoverErr := chunkErr.Recover(ctx)
		if recoverErr != nil {
			return recoverErr
		}

		if !recovered {
			return err
		}

		causes = append(causes, err)

		if failErr := m.Retry.Fail(ctx, err); failErr != nil {
			if errors.Is(failErr, retry.ErrBudgetExhausted) {
				return &retry.RetryExhausted{Attempts: m.Retry.Attempt(), Cause: errors.Join(causes...)}
			}

			return failErr
		}
	}
}

func transferChunk(ctx context.Context, source Source, destination Destination, job ChunkMetadata) error {
	data, err := source.ReadChunk(ctx, job.Offset, job.Size)
	if err != nil {
		return err
	}

	return destination.WriteChunk(ctx, job.Offset, data)
}
