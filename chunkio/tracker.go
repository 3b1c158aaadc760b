// Package chunkio implements the concurrent chunked transfer engine used to
// move large payloads between a Source and a Destination over short-lived
// signed URLs, a bounded worker pool pulling one chunk at a time under a
// shared retry budget.
package chunkio

import "sync"

// ChunkMetadata describes one chunk of a transfer: its zero-based id, byte
// offset, size, and whether it has completed.
type ChunkMetadata struct {
	ID        int
	Offset    int64
	Size      int64
	Completed bool
}

// ChunkedIOTracker computes the fixed set of chunks for a transfer of
// totalSize bytes in chunkSize strides once at construction, then tracks
// which have completed. The zero-chunk case (totalSize == 0) is always
// complete.
type ChunkedIOTracker struct {
	mu     sync.Mutex
	chunks []ChunkMetadata
}

// NewChunkedIOTracker builds the chunk plan for a transfer of totalSize
// bytes using chunks of at most chunkSize bytes; the final chunk may be
// smaller.
func NewChunkedIOTracker(totalSize, chunkSize int64) *ChunkedIOTracker {
	if chunkSize <= 0 {
		chunkSize = totalSize
	}

	var chunks []ChunkMetadata

	for offset, id := int64(0), 0; offset < totalSize; offset, id = offset+chunkSize, id+1 {
		size := chunkSize
		if remaining := totalSize - offset; remaining < size {
			size = remaining
		}

		chunks = append(chunks, ChunkMetadata{ID: id, Offset: offset, Size: size})
	}

	return &ChunkedIOTracker{chunks: chunks}
}

// Chunks returns a snapshot of every chunk's current metadata.
func (t *ChunkedIOTracker) Chunks() []ChunkMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ChunkMetadata, len(t.chunks))
	copy(out, t.chunks)

	return out
}

// Incomplete returns a snapshot of the chunks not yet marked complete.
func (t *ChunkedIOTracker) Incomplete() []ChunkMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []ChunkMetadata

	for _, c := range t.chunks {
		if !c.Completed {
			out = append(out, c)
		}
	}

	return out
}

// SetComplete marks the chunk with the given id as completed. It is
// idempotent.
func (t *ChunkedIOTracker) SetComplete(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.chunks {
		if t.chunks[i].ID == id {
			t.chunks[i].Completed = true
			return
		}
	}
}

// Progress returns the fraction of chunks completed, 0 when there are no
// chunks.
func (t *ChunkedIOTracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.chunks) == 0 {
		return 0
	}

	completed := 0

	for _, c := range t.chunks {
		if c.Completed {
			completed++
		}
	}

	return float64(completed) / float64(len(t.chunks))
}

// IsComplete reports whether every chunk has completed. A tracker with no
// chunks (a zero-byte transfer) is always complete.
func (t *ChunkedIOTracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.chunks {
		if !c.Completed {
			return false
		}
	}

	return true
}
