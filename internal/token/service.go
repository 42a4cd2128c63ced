package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	// defaultTokenPath is appended to token URIs that do not already name a
	// token endpoint.
	defaultTokenPath = "connect/token"
	// maxTokenBodySize limits how much of a token response is read.
	maxTokenBodySize = 1 << 20

	// ErrorInvalidClient is the OAuth2 error code for rejected client credentials.
	ErrorInvalidClient = "invalid_client"
	// ErrorAuthenticationFailed replaces ErrorInvalidClient when the issuer
	// only explains the failure in its WWW-Authenticate header.
	ErrorAuthenticationFailed = "authentication_failed"
)

// Service performs client-credentials token requests. It holds no token
// state: every Acquire is a fresh round trip. Acquisitions are serialized so
// only one token request is in flight at a time.
//
// Construct one Service per process and share it by reference.
type Service struct {
	client *http.Client
	mu     sync.Mutex
}

// NewService creates a token service on the given client. A nil client uses
// a dedicated client with a 30 second timeout.
func NewService(client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{client: client}
}

// NormalizeTokenURI appends the canonical token path to uri unless it already
// contains one.
func NormalizeTokenURI(uri string) string {
	if strings.Contains(uri, "/token") {
		return uri
	}
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri + defaultTokenPath
}

// Acquire requests a new token. It never returns an error: failures come back
// as a Token whose ErrorMessage is set, and callers must check Usable before
// sending the token anywhere.
func (s *Service) Acquire(ctx context.Context, tokenURI, clientID, secret string, scopes []string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Token{ErrorMessage: err.Error(), ClientID: clientID}
	}

	tok, err := s.request(ctx, NormalizeTokenURI(tokenURI), clientID, secret, scopes)
	if err != nil {
		return Token{ErrorMessage: err.Error(), ClientID: clientID}
	}
	return tok
}

func (s *Service) request(ctx context.Context, uri, clientID, secret string, scopes []string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	for _, scope := range scopes {
		if scope != "" {
			form.Add("scope", scope)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("building token request: %w", err)
	}
	req.SetBasicAuth(clientID, secret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBodySize))
	if err != nil {
		return Token{}, fmt.Errorf("reading token response: %w", err)
	}

	log.Debug().
		Str("uri", uri).
		Str("client_id", clientID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("token request completed")

	if resp.StatusCode == http.StatusOK {
		return parseSuccess(body, clientID, start)
	}
	return parseFailure(resp, body, clientID), nil
}

func parseSuccess(body []byte, clientID string, issuedAt time.Time) (Token, error) {
	if !gjson.ValidBytes(body) {
		return Token{}, fmt.Errorf("invalid JSON in token response")
	}
	access := gjson.GetBytes(body, "access_token").String()
	if access == "" {
		return Token{}, fmt.Errorf("token response has no access_token")
	}

	tok, err := ParseToken(access)
	if err != nil {
		// Opaque tokens are still sendable; only the claims are unknown.
		log.Debug().Err(err).Msg("access token is not a JWT")
		tok = Token{AccessToken: access}
	}
	if tok.Expires.IsZero() {
		if secs := gjson.GetBytes(body, "expires_in").Int(); secs > 0 {
			tok.Expires = issuedAt.Add(time.Duration(secs) * time.Second).UTC()
		}
	}
	if len(tok.Scopes) == 0 {
		tok.Scopes = strings.Fields(gjson.GetBytes(body, "scope").String())
	}
	tok.ClientID = clientID
	return tok, nil
}

func parseFailure(resp *http.Response, body []byte, clientID string) Token {
	code := gjson.GetBytes(body, "error").String()
	desc := gjson.GetBytes(body, "error_description").String()

	if desc == "" && isInvalidClient(code) {
		code = ErrorAuthenticationFailed
		desc = strings.Join(resp.Header.Values("WWW-Authenticate"), " ")
	}
	if desc == "" {
		desc = code
	}
	if desc == "" {
		desc = fmt.Sprintf("token endpoint returned %s", resp.Status)
	}
	return Token{ErrorCode: code, ErrorMessage: desc, ClientID: clientID}
}

// isInvalidClient matches both the RFC 6749 spelling and the PascalCase
// variant some identity servers return.
func isInvalidClient(code string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(code, "_", ""))
	return normalized == "invalidclient"
}
