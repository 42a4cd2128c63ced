package http

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxBodyLogSize = 1024

// DebugLogger traces individual calls. A nil *DebugLogger is valid and logs
// nothing, so the executor calls it unconditionally.
type DebugLogger struct {
	log zerolog.Logger
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{log: zerolog.New(out).With().Timestamp().Logger()}
}

// NewDebugLoggerFrom wraps an existing logger.
func NewDebugLoggerFrom(l zerolog.Logger) *DebugLogger {
	return &DebugLogger{log: l}
}

func (d *DebugLogger) LogRequest(workerID int, req *http.Request, body []byte) {
	if d == nil {
		return
	}
	ev := d.log.Debug().
		Int("worker", workerID).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Strs("headers", headerLines(req.Header))
	if len(body) > 0 {
		ev = ev.Str("body", truncateBody(body))
	}
	ev.Msg(">>> request")
}

func (d *DebugLogger) LogResponse(workerID int, resp *http.Response, duration time.Duration) {
	if d == nil {
		return
	}
	d.log.Debug().
		Int("worker", workerID).
		Int("status", resp.StatusCode).
		Str("url", resp.Request.URL.String()).
		Dur("elapsed", duration.Round(time.Millisecond)).
		Msg("<<< response")
}

func (d *DebugLogger) LogError(workerID int, endpoint string, err error, duration time.Duration) {
	if d == nil {
		return
	}
	d.log.Debug().
		Int("worker", workerID).
		Str("endpoint", endpoint).
		Err(err).
		Dur("elapsed", duration.Round(time.Millisecond)).
		Msg("!!! call failed")
}

// headerLines renders headers as "Name: value" with the bearer token masked.
func headerLines(h http.Header) []string {
	lines := make([]string, 0, len(h))
	for name, values := range h {
		value := strings.Join(values, ", ")
		if strings.EqualFold(name, "Authorization") {
			value = maskAuthorization(value)
		}
		lines = append(lines, name+": "+value)
	}
	return lines
}

func maskAuthorization(v string) string {
	scheme, _, found := strings.Cut(v, " ")
	if !found {
		return "***"
	}
	return scheme + " ***"
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + "... (truncated)"
}
