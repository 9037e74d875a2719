// Package config provides YAML job files for burstgate.
//
// A job file describes one dispatch run as an alternative to command-line
// flags:
//
//	url: https://staging.example.com/health
//	count: 50
//	timeout: 5s
//	headers:
//	  Authorization: Bearer ${API_TOKEN}
//
//	pacing:
//	  delay: 10ms
//	  rate: 20
//	  burst: 5
//
//	gate:
//	  type: all
//	  gates:
//	    - hosts:staging.example.com
//	    - quota:100
//	    - type: token
//	      expected: ${BURSTGATE_TOKEN}
//	      presented: ${BURSTGATE_PRESENTED:-}
//
//	listen: 127.0.0.1:9090
//	history: runs.db
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/burstgate"
)

// Config is the root structure of a job file.
//
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// URL is the request target.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Count is the number of requests. nil when the file leaves it out.
	Count *int `yaml:"count"`

	// Timeout bounds each request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with every request. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Pacing configures the post-response delay and the token bucket.
	Pacing PacingConfig `yaml:"pacing"`

	// Gate is the authorization policy. Empty means allow.
	Gate GateConfig `yaml:"gate"`

	// Listen is the monitor server address. Empty disables the monitor.
	// Supports environment variable substitution.
	Listen string `yaml:"listen"`

	// History is the SQLite file runs are recorded in. Empty disables it.
	// Supports environment variable substitution.
	History string `yaml:"history"`
}

// PacingConfig controls how requests are spaced.
type PacingConfig struct {
	// Delay is the pause after each response. nil keeps the 10ms default;
	// "0s" disables it.
	Delay *Duration `yaml:"delay"`

	// Rate is the token-bucket rate in requests per second. 0 disables it.
	Rate float64 `yaml:"rate"`

	// Burst is the token-bucket size. Defaults to 1 when Rate is set.
	Burst int `yaml:"burst"`
}

// GateConfig specifies an authorization gate.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	gate: allow
//	gate: deny
//	gate: quota:100
//	gate: hosts:api.example.com,staging.example.com
//
// Structured object:
//
//	gate:
//	  type: token
//	  expected: ${BURSTGATE_TOKEN}
//	  presented: ${BURSTGATE_PRESENTED}
type GateConfig struct {
	// Type is one of "allow", "deny", "token", "quota", "hosts", "all".
	Type string

	// Expected is the credential a token gate accepts.
	Expected string

	// Presented is the credential offered to a token gate.
	Presented string

	// MaxRequests is the quota gate limit.
	MaxRequests int

	// Hosts are the host names a hosts gate accepts.
	Hosts []string

	// Gates are the members of an "all" gate.
	Gates []GateConfig
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for GateConfig.
func (g *GateConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return g.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type        string       `yaml:"type"`
			Expected    string       `yaml:"expected"`
			Presented   string       `yaml:"presented"`
			MaxRequests int          `yaml:"max_requests"`
			Hosts       []string     `yaml:"hosts"`
			Gates       []GateConfig `yaml:"gates"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		g.Type = raw.Type
		g.Expected = raw.Expected
		g.Presented = raw.Presented
		g.MaxRequests = raw.MaxRequests
		g.Hosts = raw.Hosts
		g.Gates = raw.Gates
		return nil
	}

	return fmt.Errorf("gate must be a string or object, got %v", node.Kind)
}

// parseShorthand parses gate shorthand syntax.
//
// Supported formats:
//   - "allow" / "deny"
//   - "quota:N"
//   - "hosts:a,b,c"
func (g *GateConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		g.Type = s[:idx]
		value := s[idx+1:]

		switch g.Type {
		case "quota":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("invalid quota %q: %w", value, err)
			}
			g.MaxRequests = n
		case "hosts":
			for _, h := range strings.Split(value, ",") {
				if h = strings.TrimSpace(h); h != "" {
					g.Hosts = append(g.Hosts, h)
				}
			}
		default:
			return fmt.Errorf("unknown gate type %q", g.Type)
		}
		return nil
	}

	switch s {
	case "allow", "deny":
		g.Type = s
	default:
		return fmt.Errorf("unknown gate %q (expected 'allow', 'deny', 'quota:N', or 'hosts:a,b')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML job file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML job data.
//
// Environment variables are expanded in the URL, header values, gate
// credentials, and the listen and history settings. The URL and count may be left out; callers then ask for
// them interactively.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.URL != "" {
		expanded, err := expandEnvVars(c.URL)
		if err != nil {
			return fmt.Errorf("url: %w", err)
		}
		c.URL = expanded

		if err := burstgate.ValidateURL(c.URL); err != nil {
			return fmt.Errorf("url: %w", err)
		}
	}

	if c.Count != nil && *c.Count < 0 {
		return fmt.Errorf("count cannot be negative, got %d", *c.Count)
	}

	if c.Timeout.Duration() < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout.Duration())
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	for _, field := range []struct {
		name string
		val  *string
	}{
		{"listen", &c.Listen},
		{"history", &c.History},
	} {
		expanded, err := expandEnvVars(*field.val)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.val = expanded
	}

	if c.Pacing.Delay != nil && c.Pacing.Delay.Duration() < 0 {
		return fmt.Errorf("pacing.delay cannot be negative, got %s", c.Pacing.Delay.Duration())
	}
	if c.Pacing.Rate < 0 {
		return fmt.Errorf("pacing.rate cannot be negative, got %v", c.Pacing.Rate)
	}
	if c.Pacing.Burst < 0 {
		return fmt.Errorf("pacing.burst cannot be negative, got %d", c.Pacing.Burst)
	}
	if c.Pacing.Rate > 0 && c.Pacing.Burst == 0 {
		c.Pacing.Burst = 1
	}

	return validateGate(&c.Gate, "gate")
}

// validateGate expands credentials and validates a gate configuration.
func validateGate(g *GateConfig, context string) error {
	switch g.Type {
	case "", "allow", "deny":
		// no additional validation needed
	case "token":
		expected, err := expandEnvVars(g.Expected)
		if err != nil {
			return fmt.Errorf("%s: expected: %w", context, err)
		}
		presented, err := expandEnvVars(g.Presented)
		if err != nil {
			return fmt.Errorf("%s: presented: %w", context, err)
		}
		if expected == "" {
			return fmt.Errorf("%s: gate type 'token' requires an expected token", context)
		}
		g.Expected, g.Presented = expected, presented
	case "quota":
		if g.MaxRequests < 0 {
			return fmt.Errorf("%s: gate type 'quota' requires max_requests >= 0, got %d", context, g.MaxRequests)
		}
	case "hosts":
		if len(g.Hosts) == 0 {
			return fmt.Errorf("%s: gate type 'hosts' requires at least one host", context)
		}
	case "all":
		if len(g.Gates) == 0 {
			return fmt.Errorf("%s: gate type 'all' requires at least one gate", context)
		}
		for i := range g.Gates {
			if err := validateGate(&g.Gates[i], fmt.Sprintf("%s.gates[%d]", context, i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unknown gate type %q", context, g.Type)
	}
	return nil
}

// ErrIncomplete is returned by [Config.Complete] when the URL or count is
// missing.
var ErrIncomplete = errors.New("job file does not set both url and count")

// Complete returns the URL and count, or [ErrIncomplete] if either is unset.
func (c *Config) Complete() (string, int, error) {
	if c.URL == "" || c.Count == nil {
		return "", 0, ErrIncomplete
	}
	return c.URL, *c.Count, nil
}
