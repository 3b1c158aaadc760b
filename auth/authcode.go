package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/evoplatform/sdk-go/evo"
)

const (
	stateTokenBytes = 16
	callbackPath    = "/"
	shutdownTimeout = 5 * time.Second
)

type callbackResult struct {
	code string
	err  error
}

// AuthCodeAuthorizer implements the OAuth2 authorization-code + PKCE flow:
// it drives a local loopback server that receives the redirect, exchanges
// the code for a token, validates the ID token, and (if offline_access was
// requested) uses the refresh token on subsequent RefreshToken calls.
type AuthCodeAuthorizer struct {
	cfg                    *oauth2.Config
	issuer                 string
	issuerSuffixExemptions []string
	logger                 *slog.Logger
	cache                  *tokenCache
	idToken                *string
	onTokenChange          func(*evo.AccessToken) error
}

// NewAuthCodeAuthorizer builds an authorizer for the given OAuth2 config
// and OIDC issuer. issuerSuffixExemptions lists hostname suffixes for which
// ID-token issuer validation is skipped (see SPEC_FULL.md §4).
func NewAuthCodeAuthorizer(cfg *oauth2.Config, issuer string, issuerSuffixExemptions []string, logger *slog.Logger) *AuthCodeAuthorizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthCodeAuthorizer{
		cfg:                    cfg,
		issuer:                 issuer,
		issuerSuffixExemptions: issuerSuffixExemptions,
		logger:                 logger,
		cache:                  newTokenCache(),
	}
}

// WithOnTokenChange registers a callback invoked every time this authorizer
// obtains a new token, whether from the initial exchange, an explicit
// RefreshToken call, or a silent refresh triggered by the underlying
// oauth2.Config's TokenSource. Pass FileTokenStore to persist the refresh
// token across process restarts. A failed callback is logged and otherwise
// ignored — persistence is best-effort, not a precondition for the
// authorizer to keep working.
func (a *AuthCodeAuthorizer) WithOnTokenChange(fn func(*evo.AccessToken) error) *AuthCodeAuthorizer {
	a.onTokenChange = fn

	return a
}

func (a *AuthCodeAuthorizer) notifyTokenChange(tok *evo.AccessToken) {
	if a.onTokenChange == nil {
		return
	}

	if err := a.onTokenChange(tok); err != nil {
		a.logger.Warn("failed to persist refreshed token", slog.String("error", err.Error()))
	}
}

// Authorize runs the full authorization-code + PKCE dance: binds a loopback
// listener, opens the authorization URL via openURL, waits for the
// redirect, exchanges the code, and validates the ID token.
func (a *AuthCodeAuthorizer) Authorize(ctx context.Context, openURL func(string) error) error {
	resultCh := make(chan callbackResult, 1)
	router := chi.NewRouter()

	srv, port, err := startCallbackServer(ctx, router)
	if err != nil {
		return err
	}

	defer shutdownCallbackServer(srv, a.logger)

	a.cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return &evo.AuthFlowError{Message: "generating state token", Err: err}
	}

	registerCallbackHandler(router, state, resultCh)

	authURL := a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	if openErr := openURL(authURL); openErr != nil {
		a.logger.Warn("failed to open browser for authorization", slog.String("error", openErr.Error()))
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return err
	}

	return a.exchangeAndValidate(ctx, code, verifier)
}

func (a *AuthCodeAuthorizer) exchangeAndValidate(ctx context.Context, code, verifier string) error {
	tok, err := a.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return &evo.AuthFlowError{Message: "token exchange failed", Err: err}
	}

	receivedAt := time.Now()

	if idTok, ok := tok.Extra("id_token").(string); ok && idTok != "" {
		if verr := ValidateIDToken(idTok, a.issuer, a.cfg.ClientID, a.issuerSuffixExemptions, receivedAt); verr != nil {
			return verr
		}

		a.idToken = &idTok
	}

	expiresIn := int(time.Until(tok.Expiry).Seconds())

	var refreshToken *string
	if tok.RefreshToken != "" {
		refreshToken = &tok.RefreshToken
	}

	fresh := &evo.AccessToken{
		TokenType:    "Bearer",
		Token:        tok.AccessToken,
		ExpiresIn:    &expiresIn,
		IssuedAt:     receivedAt,
		IDToken:      a.idToken,
		RefreshToken: refreshToken,
	}

	a.cache.set(fresh)
	a.notifyTokenChange(fresh)

	return nil
}

// GetDefaultHeaders implements Authorizer.
func (a *AuthCodeAuthorizer) GetDefaultHeaders(ctx context.Context) (*evo.HeaderDict, error) {
	tok, err := a.cache.getOrRefresh(ctx, a.refresh)
	if err != nil {
		return nil, err
	}

	headers := evo.NewHeaderDict()
	headers.Set("Authorization", tok.AuthorizationHeader())

	return headers, nil
}

// RefreshToken implements Authorizer using the stored refresh token, if
// offline_access was requested and granted.
func (a *AuthCodeAuthorizer) RefreshToken(ctx context.Context) (bool, error) {
	tok, err := a.refresh(ctx)
	if err != nil {
		return false, err
	}

	a.cache.set(tok)

	return true, nil
}

// refresh exchanges the stored refresh token for a new access token. It is
// used both by the explicit RefreshToken call and, via tokenCache's
// getOrRefresh, by GetDefaultHeaders's silent refresh path — so the
// onTokenChange notification lives here rather than in each caller.
func (a *AuthCodeAuthorizer) refresh(ctx context.Context) (*evo.AccessToken, error) {
	current := a.cache.current()
	if current == nil || current.RefreshToken == nil {
		return nil, &evo.AuthFlowError{Message: "no refresh token available; re-authorization required"}
	}

	src := a.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: *current.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, &evo.AuthFlowError{Message: "token refresh failed", Err: err}
	}

	expiresIn := int(time.Until(tok.Expiry).Seconds())

	var refreshToken *string
	if tok.RefreshToken != "" {
		refreshToken = &tok.RefreshToken
	} else {
		refreshToken = current.RefreshToken
	}

	fresh := &evo.AccessToken{
		TokenType:    "Bearer",
		Token:        tok.AccessToken,
		ExpiresIn:    &expiresIn,
		IssuedAt:     time.Now(),
		RefreshToken: refreshToken,
	}

	a.notifyTokenChange(fresh)

	return fresh, nil
}

func startCallbackServer(ctx context.Context, handler http.Handler) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, &evo.AuthFlowError{Message: "binding loopback listener", Err: err}
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, &evo.AuthFlowError{Message: "loopback listener address is not TCP"}
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: shutdownTimeout}

	go func() {
		_ = srv.Serve(listener)
	}()

	return srv, tcpAddr.Port, nil
}

func registerCallbackHandler(router chi.Router, state string, resultCh chan<- callbackResult) {
	router.Get(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	if r.URL.Query().Get("state") != state {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: errors.New("auth: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: authorization failed: %s: %s", errParam, desc)}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: errors.New("auth: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You can close this window.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", &evo.AuthFlowError{Message: "authorization callback failed", Err: result.err}
		}

		return result.code, nil
	case <-ctx.Done():
		return "", &evo.AuthFlowError{Message: "browser authorization canceled", Err: ctx.Err()}
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
