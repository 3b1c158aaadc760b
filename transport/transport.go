// Package transport implements the reference-counted HTTP session shared by
// every connector and authorizer: it serializes request bodies, attaches
// default headers, never auto-follows redirects, and wraps the underlying
// round trip in a circuit breaker and the retry harness.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/evoplatform/sdk-go/evo"
	"github.com/evoplatform/sdk-go/internal/bodycodec"
	"github.com/evoplatform/sdk-go/retry"
)

// DefaultUserAgent is set on every request that does not specify its own.
const DefaultUserAgent = "evo-sdk-go/0.1"

// closeGracePeriod is slept once the outermost Close call drops the
// reference count to zero, to let underlying TLS connections finish
// shutting down before the caller proceeds.
const closeGracePeriod = 250 * time.Millisecond

// HTTPResponse is the uniform response shape returned by Request.
type HTTPResponse struct {
	Status  int
	Reason  string
	Headers *evo.HeaderDict
	Data    []byte
}

// Transport manages the underlying HTTP client. open()/close() are
// reference-counted: only the outermost Close releases resources, and a
// Transport re-opened after a full close behaves like a fresh object.
type Transport struct {
	UserAgent string
	Logger    *slog.Logger
	Retry     *retry.Retry

	mu         sync.Mutex
	refs       int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*HTTPResponse]
	sleepFn    func(ctx context.Context, d time.Duration) error
}

// New returns a Transport with default settings. Call Open before use.
func New() *Transport {
	return &Transport{
		UserAgent: DefaultUserAgent,
		Logger:    slog.Default(),
		Retry:     retry.New(3, retry.Exponential{Factor: 0.5, Max: 10 * time.Second}),
		sleepFn:   sleepCtx,
	}
}

// Open increments the reference count, constructing the underlying client
// and circuit breaker on the first call.
func (t *Transport) Open() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refs++
	if t.refs > 1 {
		return
	}

	t.httpClient = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}

	t.breaker = gobreaker.NewCircuitBreaker[*HTTPResponse](gobreaker.Settings{
		Name:        "transport",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
}

// Close decrements the reference count. Only the outermost Close releases
// the underlying client, and it sleeps closeGracePeriod first.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	t.refs--
	remaining := t.refs
	t.mu.Unlock()

	if remaining > 0 {
		return nil
	}

	if err := t.sleepFn(ctx, closeGracePeriod); err != nil {
		return err
	}

	t.mu.Lock()
	t.httpClient = nil
	t.breaker = nil
	t.mu.Unlock()

	return nil
}

// RequestOptions carries the optional parameters to Request.
type RequestOptions struct {
	Headers    *evo.HeaderDict
	PostParams map[string]string
	Body       any
	Timeout    time.Duration
}

// Request submits one HTTP request. Redirects are never followed; 3xx
// responses are returned to the caller for inspection. Network/timeout
// failures are wrapped in *evo.TransportError and retried transparently
// under the Retry Harness; RetryExhausted surfaces as the cause once the
// budget is spent. The body is re-encoded for every attempt; an io.Reader
// body is passed through as is, so a retry does not replay what an earlier
// attempt already read from it.
func (t *Transport) Request(ctx context.Context, method, url string, opts RequestOptions) (*HTTPResponse, error) {
	t.mu.Lock()
	client, breaker := t.httpClient, t.breaker
	t.mu.Unlock()

	if client == nil {
		return nil, fmt.Errorf("%w: transport is not open", evo.ErrClientUsage)
	}

	contentType := ""
	if opts.Headers != nil {
		contentType = opts.Headers.Get("Content-Type")
	}

	var resp *HTTPResponse

	doErr := t.Retry.Do(ctx, isTransportError, func(ctx context.Context, _ *retry.Handle) error {
		// Encode per attempt so a retried request re-sends the full body.
		bodyReader, resolvedContentType, encErr := bodycodec.Encode(contentType, opts.PostParams, opts.Body)
		if encErr != nil {
			return encErr
		}

		reqCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}

		req, buildErr := buildRequest(reqCtx, method, url, bodyReader, resolvedContentType, opts.Headers, t.UserAgent)
		if buildErr != nil {
			return buildErr
		}

		result, execErr := breaker.Execute(func() (*HTTPResponse, error) {
			httpResp, doErr := client.Do(req)
			if doErr != nil {
				return nil, &evo.TransportError{Op: method + " " + url, Err: doErr}
			}

			return toHTTPResponse(httpResp)
		})
		if execErr != nil {
			return execErr
		}

		resp = result

		return nil
	})
	if doErr != nil {
		return nil, doErr
	}

	return resp, nil
}

func buildRequest(
	ctx context.Context, method, url string, body io.Reader, contentType string, headers *evo.HeaderDict, userAgent string,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", evo.ErrClientUsage, err)
	}

	if headers != nil {
		for _, k := range headers.Keys() {
			req.Header.Set(k, headers.Get(k))
		}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	return req, nil
}

func toHTTPResponse(resp *http.Response) (*HTTPResponse, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &evo.TransportError{Op: "reading response body", Err: err}
	}

	headers := evo.NewHeaderDict()
	for k, vs := range resp.Header {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	return &HTTPResponse{
		Status:  resp.StatusCode,
		Reason:  resp.Status,
		Headers: headers,
		Data:    data,
	}, nil
}

// isTransportError reports whether err is eligible for local retry: only
// *evo.TransportError and an open circuit breaker are retryable here;
// everything else (ClientUsage, decoded ServiceError bodies) propagates
// immediately per the error-handling design.
func isTransportError(err error) bool {
	var transportErr *evo.TransportError
	if asTransportError(err, &transportErr) {
		return true
	}

	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

func asTransportError(err error, target **evo.TransportError) bool {
	te, ok := err.(*evo.TransportError)
	if ok {
		*target = te
	}

	return ok
}

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
