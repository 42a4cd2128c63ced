// Command testserver runs a local HTTP target for stress runs.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port       Port to listen on (default: 8080)
//	-host       Host to bind to (default: localhost)
//	-client     Client credentials as id:secret[:scope,scope] (repeatable)
//	-token-ttl  Lifetime of issued access tokens (default: 1h)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stresstest/testserver"
)

// clientFlags collects repeated -client values.
type clientFlags []testserver.Client

func (c *clientFlags) String() string { return fmt.Sprint(len(*c), " clients") }

func (c *clientFlags) Set(v string) error {
	client, err := parseClient(v)
	if err != nil {
		return err
	}
	*c = append(*c, client)
	return nil
}

func parseClient(v string) (testserver.Client, error) {
	parts := strings.SplitN(v, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return testserver.Client{}, fmt.Errorf("client %q: expected id:secret[:scopes]", v)
	}
	c := testserver.Client{ID: parts[0], Secret: parts[1]}
	if len(parts) == 3 && parts[2] != "" {
		c.Scopes = strings.Split(parts[2], ",")
	}
	return c, nil
}

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	ttl := flag.Duration("token-ttl", time.Hour, "lifetime of issued access tokens")
	var clients clientFlags
	flag.Var(&clients, "client", "client credentials id:secret[:scope,scope] (repeatable)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})

	if len(clients) == 0 {
		clients = append(clients, testserver.Client{ID: "stresstest", Secret: "secret"})
	}
	opts := []testserver.Option{testserver.WithTokenTTL(*ttl)}
	for _, c := range clients {
		opts = append(opts, testserver.WithClient(c))
	}

	server := testserver.NewServer(opts...)
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("Stresstest Test Server")
	fmt.Println("======================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health              - Health check")
	fmt.Println("  GET  /status/{code}       - Return specific status code")
	fmt.Println("  GET  /delay/{ms}          - Delay response by milliseconds")
	fmt.Println("  POST /echo                - Echo request body")
	fmt.Println("  GET  /random-delay        - Random delay (?min=50&max=200)")
	fmt.Println("  GET  /fail-rate           - Fail percentage of requests (?rate=10)")
	fmt.Println("  GET  /query               - Echo query parameters (?missing=true answers 404)")
	fmt.Println("  GET  /headers             - Echo request headers as JSON")
	fmt.Println("  POST /connect/token       - Client-credentials grant, issues HS256 JWTs")
	fmt.Println("  GET  /protected/...       - Requires a bearer token from /connect/token")
	fmt.Println("  GET  /stats               - Hit counters")
	fmt.Println()
	for _, c := range clients {
		fmt.Printf("Client: %s (scopes: %s)\n", c.ID, strings.Join(c.Scopes, " "))
	}

	srv := &http.Server{Addr: addr, Handler: server.Handler(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) // in-flight delays are cut short anyway
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
