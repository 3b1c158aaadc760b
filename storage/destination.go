package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/evoplatform/sdk-go/chunkio"
	"github.com/evoplatform/sdk-go/evo"
	"github.com/evoplatform/sdk-go/retry"
	"github.com/evoplatform/sdk-go/transport"
)

// commitContentType is the content type expected by a block-list commit
// request body.
const commitContentType = "text/plain; charset=UTF-8"

// Destination is a chunkio.Destination that stages chunks as blocks behind
// a signed URL and commits them as a single block list. It is single-use:
// WriteChunk after Commit is a caller error.
type Destination struct {
	transport *transport.Transport
	urlCB     URLCallback
	logger    *slog.Logger

	mu        sync.Mutex
	url       string
	blocks    *BlockList
	committed bool
}

// NewDestination returns a Destination that resolves its upload URL
// lazily, via urlCB, on the first write.
func NewDestination(t *transport.Transport, urlCB URLCallback, logger *slog.Logger) *Destination {
	if logger == nil {
		logger = slog.Default()
	}

	return &Destination{
		transport: t,
		urlCB:     urlCB,
		logger:    logger,
		blocks:    NewBlockList(),
	}
}

func (d *Destination) currentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	existing := d.url
	d.mu.Unlock()

	if existing != "" {
		return existing, nil
	}

	resolved, err := d.urlCB(ctx)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.url = resolved
	d.mu.Unlock()

	return resolved, nil
}

func (d *Destination) setURL(url string) {
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
}

// WriteChunk implements chunkio.Destination: it stages one block at offset
// via a PUT to the signed URL. A 403 response is surfaced as a recoverable
// chunkio.ChunkedIOError whose Recover re-fetches the URL through urlCB.
func (d *Destination) WriteChunk(ctx context.Context, offset int64, data []byte) error {
	d.mu.Lock()
	committed := d.committed
	d.mu.Unlock()

	if committed {
		return fmt.Errorf("%w: cannot write a chunk after the destination has been committed", evo.ErrClientUsage)
	}

	blockID := d.blocks.AddBlock(offset)

	d.logger.Debug("staging block", slog.Int64("offset", offset), slog.String("block_id", blockID))

	base, err := d.currentURL(ctx)
	if err != nil {
		return err
	}

	requestURL, err := withQuery(base, map[string]string{"comp": "block", "blockid": blockID})
	if err != nil {
		return err
	}

	resp, err := d.transport.Request(ctx, "PUT", requestURL, transport.RequestOptions{
		Headers: blockHeaders(),
		Body:    data,
	})
	if err != nil {
		return err
	}

	if resp.Status == expiredStatus {
		return &signedURLExpiredError{op: "block upload", status: resp.Status, refresh: d.urlCB, setURL: d.setURL}
	}

	if resp.Status != http.StatusCreated {
		return &evo.ServiceError{Status: resp.Status, Reason: resp.Reason, Content: resp.Data, Headers: resp.Headers}
	}

	return nil
}

// Commit seals the block list and commits it to storage. r is shared with
// the chunkio.Manager that drove the writes: a 403 is recovered by
// re-fetching the signed URL and retried under r's budget, exactly as
// chunkio.Manager recovers a single chunk.
func (d *Destination) Commit(ctx context.Context, r *retry.Retry) error {
	d.mu.Lock()
	if d.committed {
		d.mu.Unlock()
		return fmt.Errorf("%w: destination already committed", evo.ErrClientUsage)
	}
	d.mu.Unlock()

	var causes []error

	for {
		err := d.commitOnce(ctx)
		if err == nil {
			d.mu.Lock()
			d.committed = true
			d.mu.Unlock()

			d.logger.Debug("commit succeeded")

			return nil
		}

		var chunkErr chunkio.ChunkedIOError
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

		if failErr := r.Fail(ctx, err); failErr != nil {
			if errors.Is(failErr, retry.ErrBudgetExhausted) {
				return &retry.RetryExhausted{Attempts: r.Attempt(), Cause: errors.Join(causes...)}
			}

			return failErr
		}
	}
}

func (d *Destination) commitOnce(ctx context.Context) error {
	payload := d.blocks.Prepare()

	d.logger.Debug("committing block list", slog.Int("bytes", len(payload)))

	base, err := d.currentURL(ctx)
	if err != nil {
		return err
	}

	requestURL, err := withQuery(base, map[string]string{"comp": "blocklist"})
	if err != nil {
		return err
	}

	headers := evo.NewHeaderDict()
	headers.Set("Content-Type", commitContentType)

	resp, err := d.transport.Request(ctx, "PUT", requestURL, transport.RequestOptions{
		Headers: headers,
		Body:    payload,
	})
	if err != nil {
		return err
	}

	if resp.Status == expiredStatus {
		return &signedURLExpiredError{op: "block list commit", status: resp.Status, refresh: d.urlCB, setURL: d.setURL}
	}

	if resp.Status != http.StatusCreated {
		return &evo.ServiceError{Status: resp.Status, Reason: resp.Reason, Content: resp.Data, Headers: resp.Headers}
	}

	return nil
}

func blockHeaders() *evo.HeaderDict {
	h := evo.NewHeaderDict()
	h.Set("Content-Type", "application/octet-stream")

	return h
}

func withQuery(rawURL string, params map[string]string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("storage: parsing signed url: %w", err)
	}

	q := parsed.Query()
	for k, v := range params {
		q.Set(k, v)
	}

	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
