package token

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stresstest/internal/core"
)

// failureHold is how long a failed acquisition is remembered before the
// cache asks the issuer again.
const failureHold = 5 * time.Second

// Credentials identify a client-credentials grant.
type Credentials struct {
	TokenURI string
	ClientID string
	Secret   string
	Scopes   []string
}

// SplitScopes turns a space separated scope string into scope values.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}

// Cache is the one place a token is reused. It returns the last issued token
// while it is still valid and acquires a new one otherwise. All workers of a
// test share one Cache; concurrent callers wait for a single acquisition.
type Cache struct {
	service *Service
	creds   Credentials
	clock   core.Clock

	mu       sync.Mutex
	current  Token
	fetched  bool
	failedAt time.Time
}

// NewCache creates a cache for one set of credentials.
func NewCache(service *Service, creds Credentials, clock core.Clock) *Cache {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Cache{service: service, creds: creds, clock: clock}
}

// Token returns a token that is valid now, acquiring one if needed. The
// result may carry an ErrorMessage when the issuer refused.
func (c *Cache) Token(ctx context.Context) Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().UTC()
	if c.fetched && c.reusable(now) {
		return c.current
	}

	tok := c.service.Acquire(ctx, c.creds.TokenURI, c.creds.ClientID, c.creds.Secret, c.creds.Scopes)
	c.current = tok
	c.fetched = true
	if tok.Usable() {
		c.failedAt = time.Time{}
		log.Debug().
			Str("client_id", c.creds.ClientID).
			Time("expires", tok.Expires).
			Msg("acquired access token")
	} else {
		c.failedAt = now
		log.Warn().
			Str("client_id", c.creds.ClientID).
			Str("error", tok.ErrorCode).
			Msg("token acquisition failed: " + tok.ErrorMessage)
	}
	return tok
}

// Bearer implements core.TokenSource. It returns an empty string when no
// usable token could be obtained, so calls go out unauthenticated.
func (c *Cache) Bearer(ctx context.Context) string {
	tok := c.Token(ctx)
	if !tok.Usable() {
		return ""
	}
	return tok.AccessToken
}

func (c *Cache) reusable(now time.Time) bool {
	if !c.current.Usable() {
		return now.Sub(c.failedAt) < failureHold
	}
	// An issuer that states no lifetime gets its token reused for the run.
	if c.current.Expires.IsZero() {
		return true
	}
	return c.current.ValidAt(now)
}
