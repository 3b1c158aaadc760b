package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/evoplatform/sdk-go/evo"
	"github.com/evoplatform/sdk-go/retry"
)

// DeviceFlow carries the fields a caller displays to the user while polling
// for device-flow authorization.
type DeviceFlow struct {
	UserCode        string
	VerificationURI string
}

// DeviceFlowAuthorizer implements the OAuth2 device-authorization grant. It
// never refreshes: refresh tokens are not issued for device flow.
type DeviceFlowAuthorizer struct {
	cfg    *oauth2.Config
	logger *slog.Logger
	cache  *tokenCache
}

// NewDeviceFlowAuthorizer builds a device-flow authorizer for the given
// endpoint and client id.
func NewDeviceFlowAuthorizer(endpoint oauth2.Endpoint, clientID string, scopes []string, logger *slog.Logger) *DeviceFlowAuthorizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &DeviceFlowAuthorizer{
		cfg:    &oauth2.Config{ClientID: clientID, Scopes: scopes, Endpoint: endpoint},
		logger: logger,
		cache:  newTokenCache(),
	}
}

// Authorize runs the full device-flow dance: requests a device code,
// invokes display with the user code and verification URL, then polls the
// token endpoint until the user authorizes or the device code expires.
func (a *DeviceFlowAuthorizer) Authorize(ctx context.Context, display func(DeviceFlow)) error {
	da, err := a.cfg.DeviceAuth(ctx)
	if err != nil {
		return &evo.AuthFlowError{Message: "device auth request failed", Err: err}
	}

	display(DeviceFlow{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	// pollBudget derives a retry budget from the device flow's own expiry
	// and poll interval (expires_in // interval attempts). The actual
	// polling loop below is delegated to golang.org/x/oauth2, which already
	// respects da.Interval/da.Expiry, so this budget is informational —
	// logged so operators can see how long a login attempt is expected to
	// remain pollable.
	budget := pollBudget(da)
	a.logger.Info("starting device authorization poll",
		slog.String("user_code", da.UserCode),
		slog.Int("max_attempts", budget.MaxAttempts),
	)

	tok, err := a.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return &evo.AuthFlowError{Message: "device code authorization failed", Err: err}
	}

	expiresIn := int(time.Until(tok.Expiry).Seconds())
	a.cache.set(&evo.AccessToken{
		TokenType: "Bearer",
		Token:     tok.AccessToken,
		ExpiresIn: &expiresIn,
		IssuedAt:  time.Now(),
	})

	return nil
}

// GetDefaultHeaders implements Authorizer.
func (a *DeviceFlowAuthorizer) GetDefaultHeaders(context.Context) (*evo.HeaderDict, error) {
	tok := a.cache.current()
	if tok == nil {
		return nil, fmt.Errorf("auth: device flow authorizer has not completed Authorize")
	}

	headers := evo.NewHeaderDict()
	headers.Set("Authorization", tok.AuthorizationHeader())

	return headers, nil
}

// RefreshToken implements Authorizer. Device flow never issues refresh
// tokens, so this always reports no refresh occurred.
func (a *DeviceFlowAuthorizer) RefreshToken(context.Context) (bool, error) {
	return false, nil
}

// pollBudget derives a Retry budget from a device-authorization response's
// expiry and poll interval, the same accounting the original
// DeviceFlowResponse._retry property uses: max_attempts = expires_in /
// interval, Linear(interval) backoff.
func pollBudget(da *oauth2.DeviceAuthResponse) *retry.Retry {
	interval := da.Interval
	if interval <= 0 {
		interval = 5
	}

	expiresIn := int64(time.Until(da.Expiry).Seconds())
	maxAttempts := int(expiresIn / interval)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	r := retry.New(maxAttempts, retry.Linear{Factor: float64(interval)})

	return r
}
