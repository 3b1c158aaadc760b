package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"github.com/evoplatform/sdk-go/evo"
)

// OIDCConfig is the subset of an OpenID Connect discovery document this SDK
// relies on. Endpoint fields are validated to be URLs under the issuer and
// stored as the suffix relative to the issuer.
type OIDCConfig struct {
	Issuer                    string `validate:"required,url"`
	AuthorizationEndpointPath string `validate:"required"`
	TokenEndpointPath         string `validate:"required"`
	DeviceAuthorizationPath   string
	EndSessionEndpointPath    string
	ResponseTypesSupported    []string
	GrantTypesSupported       []string
}

// AuthorizationEndpoint returns the full authorization endpoint URL.
func (c OIDCConfig) AuthorizationEndpoint() string { return c.Issuer + c.AuthorizationEndpointPath }

// TokenEndpoint returns the full token endpoint URL.
func (c OIDCConfig) TokenEndpoint() string { return c.Issuer + c.TokenEndpointPath }

type discoveryDocument struct {
	Issuer                      string   `json:"issuer"`
	AuthorizationEndpoint       string   `json:"authorization_endpoint"`
	TokenEndpoint               string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint string   `json:"device_authorization_endpoint,omitempty"`
	EndSessionEndpoint          string   `json:"end_session_endpoint,omitempty"`
	ResponseTypesSupported      []string `json:"response_types_supported"`
	GrantTypesSupported         []string `json:"grant_types_supported"`
}

var structValidator = validator.New()

// DiscoverOIDC fetches and validates the OIDC discovery document at
// <issuer>/.well-known/openid-configuration. Every non-empty endpoint field
// must be a URL under the issuer; endpoints are stored as the suffix
// relative to the issuer.
func DiscoverOIDC(ctx context.Context, httpClient *http.Client, issuer string) (*OIDCConfig, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	reqURL := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &evo.AuthFlowError{Message: "building discovery request", Err: err}
	}

	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &evo.AuthFlowError{Message: "discovery request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &evo.AuthFlowError{Message: "reading discovery response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &evo.AuthFlowError{Message: fmt.Sprintf("discovery returned HTTP %d", resp.StatusCode)}
	}

	var doc discoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &evo.AuthFlowError{Message: "decoding discovery document", Err: err}
	}

	cfg := &OIDCConfig{
		Issuer:                 doc.Issuer,
		ResponseTypesSupported: doc.ResponseTypesSupported,
		GrantTypesSupported:    doc.GrantTypesSupported,
	}

	cfg.AuthorizationEndpointPath, err = endpointSuffix(doc.Issuer, doc.AuthorizationEndpoint)
	if err != nil {
		return nil, err
	}

	cfg.TokenEndpointPath, err = endpointSuffix(doc.Issuer, doc.TokenEndpoint)
	if err != nil {
		return nil, err
	}

	if doc.DeviceAuthorizationEndpoint != "" {
		cfg.DeviceAuthorizationPath, err = endpointSuffix(doc.Issuer, doc.DeviceAuthorizationEndpoint)
		if err != nil {
			return nil, err
		}
	}

	if doc.EndSessionEndpoint != "" {
		cfg.EndSessionEndpointPath, err = endpointSuffix(doc.Issuer, doc.EndSessionEndpoint)
		if err != nil {
			return nil, err
		}
	}

	if err := structValidator.Struct(cfg); err != nil {
		return nil, &evo.AuthFlowError{Message: "discovery document failed validation", Err: err}
	}

	return cfg, nil
}

// endpointSuffix requires a non-empty endpoint to start with issuer,
// returning the remainder. An empty endpoint yields an empty suffix and no
// error.
func endpointSuffix(issuer, endpoint string) (string, error) {
	if endpoint == "" {
		return "", nil
	}

	if !strings.HasPrefix(endpoint, issuer) {
		return "", &evo.AuthFlowError{Message: fmt.Sprintf("endpoint %q is not under issuer %q", endpoint, issuer)}
	}

	return strings.TrimPrefix(endpoint, issuer), nil
}

// defaultIssuerSuffixExemptions is the empty default list of hostname
// suffixes for which ID-token issuer validation is skipped. Callers pass
// their own list, for identity providers known to issue tokens from a host
// other than the discovery issuer, as the issuerSuffixExemptions argument of
// NewAuthCodeAuthorizer and ValidateIDToken.
var defaultIssuerSuffixExemptions = []string{}

// ValidateIDToken decodes and validates an ID token's claims against the
// configured issuer and client id. It does not verify the token's
// signature — that requires the issuer's JWKS, which is out of scope for
// this SDK core.
func ValidateIDToken(idToken, issuer, clientID string, issuerSuffixExemptions []string, receivedAt time.Time) error {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return &evo.AuthFlowError{Message: "unable to decode ID token", Err: err}
	}

	if !issuerExempt(issuer, issuerSuffixExemptions) {
		iss, _ := claims["iss"].(string)
		if iss != issuer {
			return &evo.AuthFlowError{Message: fmt.Sprintf("ID token issuer %q does not match expected %q", iss, issuer)}
		}
	}

	if !audienceContains(claims["aud"], clientID) {
		return &evo.AuthFlowError{Message: fmt.Sprintf("ID token audience does not contain client id %q", clientID)}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return &evo.AuthFlowError{Message: "ID token missing exp claim"}
	}

	if receivedAt.After(exp.Add(evo.AccessTokenClockDrift)) {
		return &evo.AuthFlowError{Message: "ID token is expired"}
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return &evo.AuthFlowError{Message: "ID token missing iat claim"}
	}

	drift := receivedAt.Sub(iat.Time)
	if drift < 0 {
		drift = -drift
	}

	if drift > evo.AccessTokenClockDrift {
		return &evo.AuthFlowError{Message: "ID token iat is outside the allowable clock drift"}
	}

	return nil
}

func issuerExempt(issuer string, suffixes []string) bool {
	u, err := url.Parse(issuer)
	if err != nil {
		return false
	}

	for _, suffix := range suffixes {
		if strings.HasSuffix(u.Hostname(), suffix) {
			return true
		}
	}

	return false
}

func audienceContains(aud any, clientID string) bool {
	switch v := aud.(type) {
	case string:
		return v == clientID
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s == clientID {
				return true
			}
		}
	}

	return false
}
