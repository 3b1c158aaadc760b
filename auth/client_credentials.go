package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/evoplatform/sdk-go/evo"
)

// ClientCredentialsAuthorizer implements the OAuth2 client-credentials
// grant: it POSTs grant_type=client_credentials with the client id, secret,
// and space-separated scopes to the token endpoint, caching the result.
type ClientCredentialsAuthorizer struct {
	cfg   clientcredentials.Config
	cache *tokenCache
}

// NewClientCredentialsAuthorizer builds an authorizer for the given token
// endpoint, client id/secret, and scopes.
func NewClientCredentialsAuthorizer(tokenURL, clientID, clientSecret string, scopes []string) *ClientCredentialsAuthorizer {
	return &ClientCredentialsAuthorizer{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
		cache: newTokenCache(),
	}
}

// GetDefaultHeaders implements Authorizer.
func (a *ClientCredentialsAuthorizer) GetDefaultHeaders(ctx context.Context) (*evo.HeaderDict, error) {
	tok, err := a.cache.getOrRefresh(ctx, a.fetch)
	if err != nil {
		return nil, err
	}

	headers := evo.NewHeaderDict()
	headers.Set("Authorization", tok.AuthorizationHeader())

	return headers, nil
}

// RefreshToken implements Authorizer by forcing a new client-credentials
// exchange.
func (a *ClientCredentialsAuthorizer) RefreshToken(ctx context.Context) (bool, error) {
	tok, err := a.fetch(ctx)
	if err != nil {
		return false, &evo.AuthFlowError{Message: "client-credentials refresh failed", Err: err}
	}

	a.cache.set(tok)

	return true, nil
}

func (a *ClientCredentialsAuthorizer) fetch(ctx context.Context) (*evo.AccessToken, error) {
	tok, err := a.cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: client-credentials token request failed: %w", err)
	}

	expiresIn := int(time.Until(tok.Expiry).Seconds())

	var scope *string
	if s := tok.Extra("scope"); s != nil {
		if str, ok := s.(string); ok {
			scope = &str
		}
	}

	return &evo.AccessToken{
		TokenType: "Bearer",
		Token:     tok.AccessToken,
		ExpiresIn: &expiresIn,
		IssuedAt:  time.Now(),
		Scope:     scope,
	}, nil
}
