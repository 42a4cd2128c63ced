package testserver

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims of an issued access token.
type Claims struct {
	ClientID string   `json:"client_id"`
	Scope    string   `json:"scope,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// handleToken implements the client-credentials grant. Clients authenticate
// with HTTP Basic auth; each requested scope is a separate scope field.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		tokenError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if gt := r.PostForm.Get("grant_type"); gt != "client_credentials" {
		tokenError(w, http.StatusBadRequest, "unsupported_grant_type", fmt.Sprintf("grant type %q is not supported", gt))
		return
	}

	id, secret, ok := r.BasicAuth()
	client, known := s.clients[id]
	if !ok || !known || client.Secret != secret {
		// No description: callers fall back to the challenge header.
		w.Header().Set("WWW-Authenticate", `Basic realm="testserver", error="invalid_client"`)
		tokenError(w, http.StatusUnauthorized, "invalid_client", "")
		return
	}

	var scopes []string
	for _, v := range r.PostForm["scope"] {
		scopes = append(scopes, strings.Fields(v)...)
	}
	for _, sc := range scopes {
		if len(client.Scopes) > 0 && !slices.Contains(client.Scopes, sc) {
			tokenError(w, http.StatusBadRequest, "invalid_scope", fmt.Sprintf("scope %q is not allowed for %s", sc, id))
			return
		}
	}

	now := time.Now()
	signed, err := s.issue(client, scopes, now)
	if err != nil {
		tokenError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	s.statsMu.Lock()
	s.tokensIssued++
	s.statsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int(s.tokenTTL.Seconds()),
		"scope":        strings.Join(scopes, " "),
	})
}

func (s *Server) issue(client Client, scopes []string, now time.Time) (string, error) {
	claims := Claims{
		ClientID: client.ID,
		Scope:    strings.Join(scopes, " "),
		Roles:    client.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   client.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// Verify checks a bearer token issued by this server.
func (s *Server) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// handleProtected answers 200 only with a valid bearer token from
// /connect/token, 401 otherwise.
func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	claims, err := s.Verify(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="expired"`)
		}
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id": claims.ClientID,
		"scope":     claims.Scope,
		"path":      r.URL.Path,
	})
}

func tokenError(w http.ResponseWriter, status int, code, description string) {
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, status, body)
}
