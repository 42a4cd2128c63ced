// Package testserver provides a local HTTP target for stress runs, including
// a client-credentials token endpoint that issues signed JWTs.
package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultTokenTTL = time.Hour
	issuer          = "stresstest-testserver"
)

// Client is a registered client-credentials client.
type Client struct {
	ID     string
	Secret string
	Scopes []string // scopes the client may request; empty allows any
	Roles  []string
}

// Option configures a Server.
type Option func(*Server)

// WithClient registers a client allowed to request tokens.
func WithClient(c Client) Option {
	return func(s *Server) { s.clients[c.ID] = c }
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithSigningKey sets the HS256 key used to sign and verify tokens.
func WithSigningKey(key []byte) Option {
	return func(s *Server) { s.signingKey = key }
}

// Server is a configurable HTTP test server.
type Server struct {
	mux        *http.ServeMux
	requestID  atomic.Int64
	signingKey []byte
	tokenTTL   time.Duration
	clients    map[string]Client

	statsMu      sync.Mutex
	hits         map[string]int64
	tokensIssued int64
}

// NewServer creates a new test server with all endpoints configured.
func NewServer(opts ...Option) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		signingKey: []byte("stresstest-testserver-key"),
		tokenTTL:   defaultTokenTTL,
		clients:    make(map[string]Client),
		hits:       make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.handle("/health", s.handleHealth)
	s.handle("/status/", s.handleStatus)
	s.handle("/delay/", s.handleDelay)
	s.handle("/echo", s.handleEcho)
	s.handle("/random-delay", s.handleRandomDelay)
	s.handle("/fail-rate", s.handleFailRate)
	s.handle("/query", s.handleQuery)
	s.handle("/headers", s.handleHeaders)
	s.handle("/connect/token", s.handleToken)
	s.handle("/protected/", s.handleProtected)
	s.mux.HandleFunc("/stats", s.handleStats)
}

// handle registers h and counts hits by pattern.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.statsMu.Lock()
		s.hits[pattern]++
		s.statsMu.Unlock()
		h(w, r)
	})
}

// Hits returns how often the handler registered at pattern was called.
func (s *Server) Hits(pattern string) int64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.hits[pattern]
}

// TokensIssued returns the number of access tokens granted.
func (s *Server) TokensIssued() int64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.tokensIssued
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleStatus returns the specified HTTP status code.
// Example: GET /status/404 returns 404 Not Found
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
	fmt.Fprintf(w, "%d %s", code, http.StatusText(code))
}

// handleDelay waits for the specified duration before responding. The wait
// ends early when the client goes away.
// Example: GET /delay/100 waits 100ms
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/delay/"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}
	if !sleep(r, time.Duration(ms)*time.Millisecond) {
		return
	}
	fmt.Fprintf(w, "delayed %dms", ms)
}

// handleEcho echoes back the request body with the same content type. Only
// POST is accepted, matching how payload tests call it.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}
	if contentType == "application/json" && !json.Valid(body) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleRandomDelay waits for a random duration within the specified range.
// Example: GET /random-delay?min=50&max=200 waits 50-200ms
func (s *Server) handleRandomDelay(w http.ResponseWriter, r *http.Request) {
	minMs, err := strconv.Atoi(r.URL.Query().Get("min"))
	if err != nil || minMs < 0 {
		minMs = 0
	}
	maxMs, err := strconv.Atoi(r.URL.Query().Get("max"))
	if err != nil || maxMs < minMs {
		maxMs = minMs + 100
	}

	delay := minMs
	if maxMs > minMs {
		delay = minMs + rand.Intn(maxMs-minMs)
	}
	if !sleep(r, time.Duration(delay)*time.Millisecond) {
		return
	}
	fmt.Fprintf(w, "delayed %dms (range: %d-%d)", delay, minMs, maxMs)
}

// handleFailRate fails a percentage of requests with 500 status.
// Example: GET /fail-rate?rate=10 fails 10% of requests
func (s *Server) handleFailRate(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
	if err != nil || rate < 0 || rate > 100 {
		rate = 0
	}
	if rand.Intn(100) < rate {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "success")
}

// handleQuery returns the query parameters as JSON. A query with
// missing=true answers 404, which exercises exclude404.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := http.StatusOK
	if q.Get("missing") == "true" {
		status = http.StatusNotFound
	}
	params := make(map[string]string, len(q))
	for k := range q {
		params[k] = q.Get(k)
	}
	writeJSON(w, status, map[string]any{
		"id":     s.requestID.Add(1),
		"method": r.Method,
		"query":  params,
	})
}

// handleHeaders returns the request headers as JSON.
func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"headers": headers,
		"method":  r.Method,
		"path":    r.URL.Path,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.statsMu.Lock()
	hits := make(map[string]int64, len(s.hits))
	for k, v := range s.hits {
		hits[k] = v
	}
	issued := s.tokensIssued
	s.statsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "tokensIssued": issued})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sleep waits for d or until the client disconnects. It reports whether the
// full duration elapsed.
func sleep(r *http.Request, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}
