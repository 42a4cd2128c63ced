// Package config loads test definitions. The format accepts both YAML and
// the JSON appsettings layout, since JSON is valid YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stresstest/internal/collector"
	"stresstest/internal/core"
	"stresstest/internal/template"
	"stresstest/internal/token"
)

var (
	// ErrNoTests is returned by Validate when no test is configured.
	ErrNoTests = errors.New("no tests configured")
	// ErrInvalidTest wraps every per-test validation failure.
	ErrInvalidTest = errors.New("invalid test")
)

// Config is the root configuration structure.
type Config struct {
	Tests   []TestSpec `yaml:"tests"`
	Threads int        `yaml:"threads"`

	// Paralell is the historical spelling; Parallel wins when both are set.
	Paralell     *bool `yaml:"paralell,omitempty"`
	ParallelFlag *bool `yaml:"parallel,omitempty"`

	Exclude404      bool                  `yaml:"exclude404"`
	CallTimeout     time.Duration         `yaml:"callTimeout,omitempty"`
	FailOnAuthError bool                  `yaml:"failOnAuthError,omitempty"`
	Thresholds      *collector.Thresholds `yaml:"thresholds,omitempty"`
	MetricsAddr     string                `yaml:"metricsAddr,omitempty"`
}

// Parallel reports whether all tests run at once.
func (c *Config) Parallel() bool {
	if c.ParallelFlag != nil {
		return *c.ParallelFlag
	}
	return c.Paralell != nil && *c.Paralell
}

// TestSpec is one configured workload.
type TestSpec struct {
	Name          string      `yaml:"name,omitempty"`
	EndPoint      string      `yaml:"endPoint"`
	PayLoadQuery  []string    `yaml:"payLoadQuery,omitempty"`
	PayLoadObject []yaml.Node `yaml:"payLoadObject,omitempty"`

	Token    string `yaml:"token,omitempty"`
	TokenURI string `yaml:"tokenUri,omitempty"`
	ClientID string `yaml:"clientId,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
	Scope    string `yaml:"scope,omitempty"`

	Threads int     `yaml:"threads,omitempty"` // overrides Config.Threads
	RPS     float64 `yaml:"rps,omitempty"`
}

// Label names the test in logs, metrics and threshold results.
func (t *TestSpec) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.EndPoint
}

// WorkerCount returns the test's own thread count or the global default.
func (t *TestSpec) WorkerCount(global int) int {
	if t.Threads > 0 {
		return t.Threads
	}
	return global
}

// UsesOAuth reports whether the test acquires tokens from an issuer.
func (t *TestSpec) UsesOAuth() bool {
	return t.ClientID != "" && t.TokenURI != ""
}

// Credentials returns the client-credentials grant of the test.
func (t *TestSpec) Credentials() token.Credentials {
	return token.Credentials{
		TokenURI: t.TokenURI,
		ClientID: t.ClientID,
		Secret:   t.Secret,
		Scopes:   token.SplitScopes(t.Scope),
	}
}

// Dispatch resolves the entries the test cycles through. The query list
// wins when non-empty; otherwise every payload object is serialized to JSON
// once, here.
func (t *TestSpec) Dispatch() (core.Dispatch, error) {
	if len(t.PayLoadQuery) > 0 {
		return core.QueryDispatch(t.PayLoadQuery), nil
	}

	bodies := make([]string, 0, len(t.PayLoadObject))
	for i := range t.PayLoadObject {
		body, err := encodeJSON(&t.PayLoadObject[i])
		if err != nil {
			return core.Dispatch{}, fmt.Errorf("payLoadObject[%d]: %w", i, err)
		}
		bodies = append(bodies, string(body))
	}
	return core.PayloadDispatch(bodies), nil
}

// LoadConfig reads a configuration file and expands ${env:VAR}
// placeholders in endpoint and credential fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	var errs []error
	for i := range cfg.Tests {
		t := &cfg.Tests[i]
		err := template.ExpandFields(map[string]*string{
			"endPoint": &t.EndPoint,
			"token":    &t.Token,
			"tokenUri": &t.TokenURI,
			"clientId": &t.ClientID,
			"secret":   &t.Secret,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("tests[%d]: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("expanding config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every problem that would stop a test from running. It is
// called before any worker starts.
func (c *Config) Validate() error {
	if len(c.Tests) == 0 {
		return ErrNoTests
	}

	var errs []error
	if c.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("callTimeout must not be negative, got %v", c.CallTimeout))
	}
	if c.Thresholds != nil && c.Thresholds.MinSuccessRate != "" {
		if err := collector.ValidatePercentage(c.Thresholds.MinSuccessRate); err != nil {
			errs = append(errs, fmt.Errorf("thresholds.minSuccessRate: %w", err))
		}
	}
	for i := range c.Tests {
		if err := c.validateTest(&c.Tests[i]); err != nil {
			errs = append(errs, fmt.Errorf("tests[%d] %q: %w", i, c.Tests[i].Label(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateTest(t *TestSpec) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTest, fmt.Sprintf(format, args...)))
	}

	if t.EndPoint == "" {
		fail("endPoint is required")
	} else if u, err := url.Parse(t.EndPoint); err != nil {
		fail("endPoint: %v", err)
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail("endPoint must be an absolute http(s) URL, got %q", t.EndPoint)
	}

	if n := t.WorkerCount(c.Threads); n < 1 {
		fail("threads must be at least 1, got %d", n)
	}
	if t.RPS < 0 {
		fail("rps must not be negative, got %v", t.RPS)
	}

	d, err := t.Dispatch()
	switch {
	case err != nil:
		fail("%v", err)
	case d.Len() == 0:
		fail("payLoadQuery or payLoadObject must contain at least one entry")
	}

	if (t.ClientID != "") != (t.TokenURI != "") {
		fail("clientId and tokenUri must be set together")
	}

	return errors.Join(errs...)
}
