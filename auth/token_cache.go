package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/evoplatform/sdk-go/evo"
)

// tokenCache holds a single token behind one mutex per authorizer.
// GetDefaultHeaders waits on the mutex, checks expiry, and triggers a
// refresh if needed; concurrent callers share one in-flight refresh via
// singleflight so a stampede of expired-token callers issues exactly one
// upstream refresh request.
type tokenCache struct {
	mu    sync.Mutex
	group singleflight.Group
	token *evo.AccessToken

	now func() time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{now: time.Now}
}

// getOrRefresh returns a non-expired token, calling refresh if the cached
// token is missing or expired.
func (c *tokenCache) getOrRefresh(ctx context.Context, refresh func(context.Context) (*evo.AccessToken, error)) (*evo.AccessToken, error) {
	c.mu.Lock()
	current := c.token
	c.mu.Unlock()

	if current != nil && !current.IsExpired(c.now()) {
		return current, nil
	}

	result, err, _ := c.group.Do("refresh", func() (any, error) {
		c.mu.Lock()
		stillCurrent := c.token
		c.mu.Unlock()

		if stillCurrent != nil && !stillCurrent.IsExpired(c.now()) {
			return stillCurrent, nil
		}

		tok, refreshErr := refresh(ctx)
		if refreshErr != nil {
			return nil, refreshErr
		}

		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()

		return tok, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*evo.AccessToken), nil
}

// set stores tok directly, bypassing refresh (used after a flow-specific
// token acquisition such as the device or auth-code exchange).
func (c *tokenCache) set(tok *evo.AccessToken) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// current returns the cached token without triggering a refresh.
func (c *tokenCache) current() *evo.AccessToken {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.token
}
