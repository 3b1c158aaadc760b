package chunkio

import "context"

// ChunkedIOError marks a recoverable failure on a Source or Destination —
// typically a short-lived signed URL that has expired. Recover attempts to
// restore usability (re-fetching the URL via its callback) and reports
// whether the caller should retry.
type ChunkedIOError interface {
	error
	Recover(ctx context.Context) (bool, error)
}
