package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stresstest/internal/core"
)

func TestLoadConfig_AppSettingsJSON(t *testing.T) {
	content := `{
  "threads": 4,
  "paralell": true,
  "exclude404": true,
  "tests": [
    {
      "endPoint": "https://api.example.com/orders/",
      "payLoadQuery": ["?id=1", "?id=2"],
      "token": "static-token"
    },
    {
      "endPoint": "https://api.example.com/search",
      "payLoadObject": [{"term": "shoes", "page": 1}, {"term": "hats", "tags": ["a", "b"], "exact": false}],
      "clientId": "svc",
      "secret": "pw",
      "scope": "orders.read orders.write",
      "tokenUri": "https://id.example.com/"
    }
  ]
}`
	cfg := loadConfigFromString(t, content)

	if cfg.Threads != 4 || !cfg.Exclude404 || !cfg.Parallel() {
		t.Errorf("unexpected globals: %+v", cfg)
	}
	if len(cfg.Tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(cfg.Tests))
	}
	if cfg.Tests[0].Token != "static-token" || len(cfg.Tests[0].PayLoadQuery) != 2 {
		t.Errorf("unexpected first test: %+v", cfg.Tests[0])
	}

	second := cfg.Tests[1]
	if !second.UsesOAuth() {
		t.Error("expected second test to use OAuth")
	}
	creds := second.Credentials()
	if creds.ClientID != "svc" || len(creds.Scopes) != 2 || creds.Scopes[1] != "orders.write" {
		t.Errorf("unexpected credentials %+v", creds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	content := `
threads: 2
parallel: false
callTimeout: 5s
failOnAuthError: true
metricsAddr: ":9100"
thresholds:
  minSuccessRate: "99%"
  maxP95Latency: 250ms
tests:
  - name: health
    endPoint: http://localhost:8080/health
    payLoadQuery: [""]
    threads: 8
    rps: 50
`
	cfg := loadConfigFromString(t, content)

	if cfg.Parallel() {
		t.Error("expected sequential run")
	}
	if cfg.CallTimeout != 5*time.Second {
		t.Errorf("expected 5s call timeout, got %v", cfg.CallTimeout)
	}
	if !cfg.FailOnAuthError || cfg.MetricsAddr != ":9100" {
		t.Errorf("unexpected globals: %+v", cfg)
	}
	if cfg.Thresholds == nil || cfg.Thresholds.MaxP95Latency != 250*time.Millisecond {
		t.Errorf("unexpected thresholds: %+v", cfg.Thresholds)
	}
	tt := cfg.Tests[0]
	if tt.Label() != "health" || tt.WorkerCount(cfg.Threads) != 8 || tt.RPS != 50 {
		t.Errorf("unexpected test: %+v", tt)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestConfig_ParallelSpellings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"neither", "threads: 1", false},
		{"legacy", "paralell: true", true},
		{"correct", "parallel: true", true},
		{"correct wins", "paralell: true\nparallel: false", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.content))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if got := cfg.Parallel(); got != tt.want {
				t.Errorf("Parallel() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestTestSpec_DispatchQueryWins(t *testing.T) {
	cfg := loadConfigFromString(t, `
tests:
  - endPoint: http://x/
    payLoadQuery: ["a", "b"]
    payLoadObject: [{"k": 1}]
`)
	d, err := cfg.Tests[0].Dispatch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind() != core.KindQuery || d.Len() != 2 {
		t.Errorf("expected 2 query entries, got %v/%d", d.Kind(), d.Len())
	}
}

func TestTestSpec_DispatchPayloadKeepsKeyOrder(t *testing.T) {
	cfg := loadConfigFromString(t, `
tests:
  - endPoint: http://x/
    payLoadQuery: []
    payLoadObject:
      - {"zeta": 1, "alpha": "two", "nested": {"b": [1, 2.5, null], "a": true}}
      - plain string
      - 42
`)
	d, err := cfg.Tests[0].Dispatch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind() != core.KindPayload || d.Len() != 3 {
		t.Fatalf("expected 3 payload entries, got %v/%d", d.Kind(), d.Len())
	}

	want := []string{
		`{"zeta":1,"alpha":"two","nested":{"b":[1,2.5,null],"a":true}}`,
		`"plain string"`,
		`42`,
	}
	for i, w := range want {
		if got := d.Entry(i).Value; got != w {
			t.Errorf("entry %d: got %s, want %s", i, got, w)
		}
	}
}

func TestTestSpec_DispatchAlias(t *testing.T) {
	cfg := loadConfigFromString(t, `
base: &base {"user": "load"}
tests:
  - endPoint: http://x/
    payLoadObject: [*base]
`)
	d, err := cfg.Tests[0].Dispatch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.Entry(0).Value; got != `{"user":"load"}` {
		t.Errorf("unexpected %s", got)
	}
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("STRESS_TEST_SECRET", "from-env")
	t.Setenv("STRESS_TEST_HOST", "api.internal")

	cfg := loadConfigFromString(t, `
tests:
  - endPoint: https://${env:STRESS_TEST_HOST}/items
    payLoadQuery: ["?q=${env:NOT_EXPANDED_IN_QUERIES}"]
    clientId: svc
    secret: ${env:STRESS_TEST_SECRET}
    tokenUri: https://${env:STRESS_TEST_HOST}/
`)
	tt := cfg.Tests[0]
	if tt.EndPoint != "https://api.internal/items" || tt.Secret != "from-env" || tt.TokenURI != "https://api.internal/" {
		t.Errorf("expected env expansion, got %+v", tt)
	}
	if tt.PayLoadQuery[0] != "?q=${env:NOT_EXPANDED_IN_QUERIES}" {
		t.Errorf("queries must be sent verbatim, got %q", tt.PayLoadQuery[0])
	}
}

func TestLoadConfig_MissingEnv(t *testing.T) {
	tmpFile := createTempFile(t, `
tests:
  - endPoint: http://x/
    secret: ${env:STRESS_TEST_DEFINITELY_UNSET}
`)
	_, err := LoadConfig(tmpFile)
	if err == nil || !strings.Contains(err.Error(), "tests[0]: secret") {
		t.Errorf("expected missing env error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no tests", "threads: 1", "no tests configured"},
		{"no endpoint", `
threads: 1
tests: [{payLoadQuery: ["a"]}]`, "endPoint is required"},
		{"relative endpoint", `
threads: 1
tests: [{endPoint: "/items", payLoadQuery: ["a"]}]`, "absolute http(s) URL"},
		{"no threads", `
tests: [{endPoint: "http://x/", payLoadQuery: ["a"]}]`, "threads must be at least 1"},
		{"no entries", `
threads: 1
tests: [{endPoint: "http://x/"}]`, "at least one entry"},
		{"half credentials", `
threads: 1
tests: [{endPoint: "http://x/", payLoadQuery: ["a"], clientId: "svc"}]`, "must be set together"},
		{"negative rps", `
threads: 1
tests: [{endPoint: "http://x/", payLoadQuery: ["a"], rps: -1}]`, "rps must not be negative"},
		{"bad threshold", `
threads: 1
thresholds: {minSuccessRate: "99"}
tests: [{endPoint: "http://x/", payLoadQuery: ["a"]}]`, "minSuccessRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.content))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestValidate_SentinelErrors(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); !errors.Is(err, ErrNoTests) {
		t.Errorf("expected ErrNoTests, got %v", err)
	}

	cfg = &Config{Threads: 1, Tests: []TestSpec{{EndPoint: "http://x/"}, {EndPoint: ""}}}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidTest) {
		t.Errorf("expected ErrInvalidTest, got %v", err)
	}
	if !strings.Contains(err.Error(), "tests[0]") || !strings.Contains(err.Error(), "tests[1]") {
		t.Errorf("expected every failing test reported, got %v", err)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpFile := createTempFile(t, "tests: [unclosed")
	if _, err := LoadConfig(tmpFile); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg := loadConfigFromString(t, "")
	if len(cfg.Tests) != 0 {
		t.Errorf("expected no tests, got %d", len(cfg.Tests))
	}
}

func loadConfigFromString(t *testing.T, content string) *Config {
	t.Helper()
	tmpFile := createTempFile(t, content)
	defer os.Remove(tmpFile)

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return tmpFile
}
