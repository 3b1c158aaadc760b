package storage

import (
	"context"
	"net/http"

	"github.com/evoplatform/sdk-go/evo"
	"github.com/evoplatform/sdk-go/transport"
)

// SimpleUploadMaxSize is the payload size threshold for PutDirect: payloads
// at or above it belong in a Destination driven by chunkio.Manager.
// PutDirect itself does not check the size of data.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// PutDirect uploads data in a single request to url, bypassing the
// block/commit dance entirely. It is intended for payloads under
// SimpleUploadMaxSize, where the overhead of a chunked session outweighs
// its benefit.
func PutDirect(ctx context.Context, t *transport.Transport, url string, data []byte) error {
	resp, err := t.Request(ctx, "PUT", url, transport.RequestOptions{
		Headers: directUploadHeaders(),
		Body:    data,
	})
	if err != nil {
		return err
	}

	if resp.Status != http.StatusCreated {
		return &evo.ServiceError{Status: resp.Status, Reason: resp.Reason, Content: resp.Data, Headers: resp.Headers}
	}

	return nil
}

func directUploadHeaders() *evo.HeaderDict {
	h := evo.NewHeaderDict()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("x-ms-blob-type", "BlockBlob")

	return h
}
