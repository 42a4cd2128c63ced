// Package token acquires OAuth2 client-credentials bearer tokens and parses
// the JWT claims a stress test cares about.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// validityMargin is how far in the future a token must expire to be reused.
const validityMargin = 15 * time.Second

// Claim names read from access tokens. Matching is case-insensitive.
const (
	claimScope    = "scope"
	claimEmail    = "email"
	claimName     = "name"
	claimClientID = "client_id"
)

var roleClaims = []string{
	"role",
	"roles",
	"http://schemas.microsoft.com/ws/2008/06/identity/claims/role",
}

// Token is an issued bearer token, or the error that prevented issuing one.
// A Token is replaced wholesale on re-acquisition and never mutated after
// it is handed out.
type Token struct {
	AccessToken  string
	Expires      time.Time // UTC; zero when the issuer did not say
	Scopes       []string
	Roles        []string
	Subject      string
	Email        string
	Name         string
	ClientID     string
	ErrorCode    string
	ErrorMessage string
}

// Usable reports whether the token carries an access token and no error.
func (t Token) Usable() bool {
	return t.ErrorMessage == "" && t.AccessToken != ""
}

// ValidAt reports whether the token expires at least 15 seconds after now.
func (t Token) ValidAt(now time.Time) bool {
	return t.Expires.Sub(now) >= validityMargin
}

// StillValid is ValidAt against the current time.
func (t Token) StillValid() bool {
	return t.ValidAt(time.Now().UTC())
}

// ParseToken reads the claims of a JWT access token. The signature is not
// verified; the token is only ever forwarded to the API under test.
func ParseToken(raw string) (Token, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Token{}, fmt.Errorf("parsing access token: %w", err)
	}

	tok := Token{AccessToken: raw}
	if sub, err := claims.GetSubject(); err == nil {
		tok.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tok.Expires = exp.Time.UTC()
	}

	for key, value := range claims {
		switch {
		case strings.EqualFold(key, claimScope):
			tok.Scopes = append(tok.Scopes, scopeValues(value)...)
		case isRoleClaim(key):
			tok.Roles = append(tok.Roles, claimStrings(value)...)
		case strings.EqualFold(key, claimEmail):
			tok.Email = firstString(value)
		case strings.EqualFold(key, claimName):
			tok.Name = firstString(value)
		case strings.EqualFold(key, claimClientID):
			tok.ClientID = firstString(value)
		}
	}
	return tok, nil
}

func isRoleClaim(key string) bool {
	for _, c := range roleClaims {
		if strings.EqualFold(key, c) {
			return true
		}
	}
	return false
}

// scopeValues accepts both the RFC 8693 space separated string and the
// array form some issuers emit.
func scopeValues(v any) []string {
	if s, ok := v.(string); ok {
		return strings.Fields(s)
	}
	return claimStrings(v)
}

func claimStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	}
	return nil
}

func firstString(v any) string {
	if s := claimStrings(v); len(s) > 0 {
		return s[0]
	}
	return ""
}
