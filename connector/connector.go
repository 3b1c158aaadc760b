// Package connector composes a Transport and an Authorizer behind a single
// base URL, implementing the merge-headers / call / 401-retry-once / match-
// response-status contract shared by every service client built on this SDK.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/moogar0880/problems"

	"github.com/evoplatform/sdk-go/auth"
	"github.com/evoplatform/sdk-go/evo"
	"github.com/evoplatform/sdk-go/transport"
)

// ResponseTypes maps an HTTP status code to the Go type CallAPI should
// decode a matching response body into. A nil entry means "no body is
// expected"; CallAPI returns a nil result for that status.
type ResponseTypes map[int]reflect.Type

// APIConnector composes a Transport and an Authorizer for calls against one
// base URL. Open/Close are reentrant and mirror the underlying Transport.
type APIConnector struct {
	BaseURL        string
	Transport      *transport.Transport
	Authorizer     auth.Authorizer
	DefaultHeaders *evo.HeaderDict

	mu   sync.Mutex
	refs int
}

// New builds a connector for baseURL using the given Transport and
// Authorizer. The Transport must be Open before the connector is used.
func New(baseURL string, t *transport.Transport, authorizer auth.Authorizer) *APIConnector {
	return &APIConnector{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Transport:  t,
		Authorizer: authorizer,
	}
}

// Open increments the connector's reference count and opens the underlying
// Transport on the first call.
func (c *APIConnector) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs++
	if c.refs == 1 {
		c.Transport.Open()
	}
}

// Close decrements the reference count, closing the underlying Transport
// once the outermost Close call drops it to zero.
func (c *APIConnector) Close(ctx context.Context) error {
	c.mu.Lock()
	c.refs--
	remaining := c.refs
	c.mu.Unlock()

	if remaining > 0 {
		return nil
	}

	return c.Transport.Close(ctx)
}

// CallAPI merges default and caller headers, invokes the Transport, retries
// once on HTTP 401 after a successful RefreshToken, and matches the
// response status against responseTypes. A status absent from responseTypes
// raises a *evo.ServiceError carrying the raw response.
func (c *APIConnector) CallAPI(
	ctx context.Context,
	method, path string,
	query url.Values,
	headers *evo.HeaderDict,
	body any,
	responseTypes ResponseTypes,
) (any, error) {
	resp, err := c.CallRaw(ctx, method, path, query, headers, body)
	if err != nil {
		return nil, err
	}

	return decodeResponse(resp, responseTypes)
}

// CallRaw merges default and caller headers, invokes the Transport, and
// retries once on HTTP 401 after a successful RefreshToken, returning the
// raw response without status matching or body decoding. Callers that need
// a response header (a Location on job submission, say) or that must
// branch on status codes CallAPI's ResponseTypes can't express use this
// directly.
func (c *APIConnector) CallRaw(
	ctx context.Context,
	method, path string,
	query url.Values,
	headers *evo.HeaderDict,
	body any,
) (*transport.HTTPResponse, error) {
	requestURL := c.BaseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	resp, err := c.doCall(ctx, method, requestURL, headers, body)
	if err != nil {
		return nil, err
	}

	if resp.Status == 401 && c.Authorizer != nil {
		refreshed, refreshErr := c.Authorizer.RefreshToken(ctx)
		if refreshErr == nil && refreshed {
			resp, err = c.doCall(ctx, method, requestURL, headers, body)
			if err != nil {
				return nil, err
			}
		}
	}

	return resp, nil
}

func (c *APIConnector) doCall(
	ctx context.Context, method, requestURL string, callerHeaders *evo.HeaderDict, body any,
) (*transport.HTTPResponse, error) {
	merged, err := c.mergedHeaders(ctx, callerHeaders)
	if err != nil {
		return nil, err
	}

	return c.Transport.Request(ctx, method, requestURL, transport.RequestOptions{
		Headers: merged,
		Body:    body,
	})
}

func (c *APIConnector) mergedHeaders(ctx context.Context, callerHeaders *evo.HeaderDict) (*evo.HeaderDict, error) {
	merged := evo.NewHeaderDict()

	if c.Authorizer != nil {
		authHeaders, err := c.Authorizer.GetDefaultHeaders(ctx)
		if err != nil {
			return nil, err
		}

		merged = evo.Merge(merged, authHeaders)
	}

	merged = evo.Merge(merged, c.DefaultHeaders)
	merged = evo.Merge(merged, callerHeaders)

	return merged, nil
}

func decodeResponse(resp *transport.HTTPResponse, responseTypes ResponseTypes) (any, error) {
	target, matched := responseTypes[resp.Status]
	if !matched {
		return nil, serviceError(resp)
	}

	if target == nil {
		return nil, nil
	}

	out := reflect.New(target)
	if err := json.Unmarshal(resp.Data, out.Interface()); err != nil {
		return nil, fmt.Errorf("connector: decoding response body for status %d: %w", resp.Status, err)
	}

	return out.Elem().Interface(), nil
}

// serviceError builds a *evo.ServiceError for a response status that did not
// match any entry in responseTypes. When the body is an RFC 7807
// problem-detail document, Reason is set to its title/detail instead of the
// raw HTTP status text.
func serviceError(resp *transport.HTTPResponse) *evo.ServiceError {
	reason := resp.Reason

	if isProblemDetail(resp.Headers.Get("Content-Type")) {
		var problem problems.DefaultProblem
		if err := json.Unmarshal(resp.Data, &problem); err == nil && (problem.Title != "" || problem.Detail != "") {
			reason = strings.TrimSpace(problem.Title + ": " + problem.Detail)
		}
	}

	return &evo.ServiceError{
		Status:  resp.Status,
		Reason:  reason,
		Content: resp.Data,
		Headers: resp.Headers,
	}
}

func isProblemDetail(contentType string) bool {
	return strings.Contains(contentType, "application/problem+json")
}
