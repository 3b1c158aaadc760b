package storage

import (
	"context"
	"fmt"
)

// URLCallback resolves (or re-resolves) the short-lived signed URL backing
// a Destination or Source. It is called once up front and again whenever a
// signedURLExpiredError's Recover fires.
type URLCallback func(ctx context.Context) (string, error)

// expiredStatus is the HTTP status a storage provider returns when a
// signed URL (SAS token, presigned S3 URL, ...) has expired or been
// rejected.
const expiredStatus = 403

// signedURLExpiredError implements chunkio.ChunkedIOError: Recover
// re-invokes the owning endpoint's URLCallback and installs the refreshed
// URL before reporting success.
type signedURLExpiredError struct {
	op      string
	status  int
	refresh URLCallback
	setURL  func(string)
}

func (e *signedURLExpiredError) Error() string {
	return fmt.Sprintf("storage: %s rejected with status %d, signed url likely expired", e.op, e.status)
}

func (e *signedURLExpiredError) Recover(ctx context.Context) (bool, error) {
	url, err := e.refresh(ctx)
	if err != nil {
		return false, err
	}

	e.setURL(url)

	return true, nil
}
