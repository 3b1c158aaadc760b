package evo

import "time"

// AccessTokenClockDrift is the allowance applied to ID-token validation
// (iat/exp checks) to tolerate clock skew between this host and the issuer.
const AccessTokenClockDrift = 5 * time.Minute

// AccessToken is the credential shape returned by every Authorizer variant.
type AccessToken struct {
	TokenType    string // always "Bearer"
	Token        string
	ExpiresIn    *int // seconds; nil means unknown lifetime
	IssuedAt     time.Time
	Scope        *string
	IDToken      *string
	RefreshToken *string
}

// ExpiresAt returns issued_at + expires_in, or the zero time if the lifetime
// is unknown.
func (t AccessToken) ExpiresAt() time.Time {
	if t.ExpiresIn == nil {
		return time.Time{}
	}

	return t.IssuedAt.Add(time.Duration(*t.ExpiresIn) * time.Second)
}

// IsExpired reports whether the token is known to be expired. A token with
// no known lifetime is never considered expired.
func (t AccessToken) IsExpired(now time.Time) bool {
	expiresAt := t.ExpiresAt()
	if expiresAt.IsZero() {
		return false
	}

	return now.After(expiresAt)
}

// TTL returns the remaining lifetime, clamped to zero, with known=true. A
// token with no known lifetime is reported as (0, false).
func (t AccessToken) TTL(now time.Time) (ttl int64, known bool) {
	if t.ExpiresIn == nil {
		return 0, false
	}

	remaining := t.ExpiresAt().Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return int64(remaining.Seconds()), true
}

// AuthorizationHeader builds the Authorization header value for this token.
func (t AccessToken) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return tokenType + " " + t.Token
}
