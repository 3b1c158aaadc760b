package auth

import (
	"context"

	"github.com/evoplatform/sdk-go/evo"
)

// StaticAuthorizer wraps a fixed bearer token. RefreshToken always returns
// false since there is nothing to refresh.
type StaticAuthorizer struct {
	token string
}

// NewStaticAuthorizer returns an Authorizer for a fixed token, e.g. one
// obtained out-of-band from a CI secret store.
func NewStaticAuthorizer(token string) *StaticAuthorizer {
	return &StaticAuthorizer{token: token}
}

// GetDefaultHeaders implements Authorizer.
func (a *StaticAuthorizer) GetDefaultHeaders(context.Context) (*evo.HeaderDict, error) {
	headers := evo.NewHeaderDict()
	headers.Set("Authorization", "Bearer "+a.token)

	return headers, nil
}

// RefreshToken implements Authorizer.
func (a *StaticAuthorizer) RefreshToken(context.Context) (bool, error) {
	return false, nil
}
