package evo

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy kinds that are not carried as their own
// struct type elsewhere in the module. Use errors.Is to check.
var (
	// ErrClientUsage marks invalid or contradictory caller arguments, e.g.
	// supplying both body and post_params to a Transport request.
	ErrClientUsage = errors.New("evo: invalid usage")

	// ErrUnauthorized marks an HTTP 401 response.
	ErrUnauthorized = errors.New("evo: unauthorized")

	// ErrAuthFlow marks OIDC misconfiguration, ID-token validation failure,
	// or a failed token refresh.
	ErrAuthFlow = errors.New("evo: auth flow failed")
)

// TransportError wraps a network, TLS, DNS, or timeout failure encountered
// while performing an HTTP request. It is retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("evo: transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError carries the details of an HTTP response whose status the
// caller did not expect: for the connector, any status absent from the
// call's ResponseTypes, including a 401 that persists after one token
// refresh.
type ServiceError struct {
	Status  int
	Reason  string
	Content []byte
	Headers *HeaderDict
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("evo: service error %d (%s): %s", e.Status, e.Reason, e.Content)
}

// AuthFlowError describes a failure in the OAuth2/OIDC lifecycle: discovery
// document validation, ID-token validation, or a refresh attempt.
type AuthFlowError struct {
	Message string
	Err     error
}

func (e *AuthFlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evo: auth flow: %s: %v", e.Message, e.Err)
	}

	return fmt.Sprintf("evo: auth flow: %s", e.Message)
}

func (e *AuthFlowError) Unwrap() error {
	return e.Err
}

func (e *AuthFlowError) Is(target error) bool {
	return target == ErrAuthFlow
}
