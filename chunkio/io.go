package chunkio

import "context"

// Source is a readable endpoint for the chunked transfer engine: typically
// a signed-URL-backed HTTP GET, but any ranged reader qualifies.
type Source interface {
	// Size returns the total number of bytes available to read.
	Size(ctx context.Context) (int64, error)
	// ReadChunk reads exactly size bytes starting at offset.
	ReadChunk(ctx context.Context, offset, size int64) ([]byte, error)
}

// Destination is a writable endpoint for the chunked transfer engine.
// Chunks may arrive in any order; writes are addressed by absolute offset
// and never overlap, so no read-modify-write interleaving is required.
type Destination interface {
	WriteChunk(ctx context.Context, offset int64, data []byte) error
}
