// Package auth implements the Authorizer variants that produce
// Authorization headers for outbound requests and refresh credentials on
// demand: a static bearer token, the OAuth2 client-credentials flow, the
// authorization-code + PKCE flow (with a loopback callback server and OIDC
// ID-token validation), and the device-authorization flow.
package auth

import (
	"context"

	"github.com/evoplatform/sdk-go/evo"
)

// Authorizer produces auth headers and refreshes credentials on 401.
// All state lives behind one mutex per authorizer; concurrent callers to
// GetDefaultHeaders share a single in-flight refresh.
type Authorizer interface {
	// GetDefaultHeaders returns the headers to attach to every outbound
	// request, refreshing the underlying token first if it is expired.
	GetDefaultHeaders(ctx context.Context) (*evo.HeaderDict, error)

	// RefreshToken forces a refresh and reports whether a new usable token
	// was obtained. Authorizers that cannot refresh (static, device-flow)
	// always return false.
	RefreshToken(ctx context.Context) (bool, error)
}
