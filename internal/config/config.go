// Package config provides the on-disk configuration model for the gateway
// and the loader that turns it into the core's ConfigLoader collaborator
// (spec.md §4.6, §6 "Persisted state layout").
//
// The model is intentionally a thin, typed mirror of the YAML file: platform
// specifics (CLI flags, env overrides) are resolved here via viper, while the
// core only ever sees the resulting []ServerConfig entries.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/spf13/viper"

	"github.com/portofcontext/pctx/pkg/gwerrors"
)

// identifierPattern matches spec.md's upstream/tool identifier rule:
// [a-zA-Z_][a-zA-Z0-9_]*
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is a legal upstream or tool name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Config is the root configuration document, deserialized from YAML.
type Config struct {
	Name      string          `yaml:"name" json:"name"`
	Version   string          `yaml:"version" json:"version"`
	Listen    string          `yaml:"listen" json:"listen"`
	Endpoint  string          `yaml:"endpoint_path" json:"endpoint_path"`
	Execution ExecutionConfig `yaml:"execution" json:"execution"`
	Servers   []ServerConfig  `yaml:"servers" json:"servers"`
	AllowHosts []string       `yaml:"allow_hosts" json:"allow_hosts"`
}

// ExecutionConfig carries the resource ceilings from spec.md §5.
// DefaultTimeoutMS and MaxTimeoutMS are not passed to the gateway: execute
// uses its own fixed default and ceiling of 10000 ms whatever they hold.
type ExecutionConfig struct {
	DefaultTimeoutMS  int   `yaml:"default_timeout_ms" json:"default_timeout_ms"`
	MaxTimeoutMS      int   `yaml:"max_timeout_ms" json:"max_timeout_ms"`
	MaxUpstreamCalls  int   `yaml:"max_upstream_calls" json:"max_upstream_calls"`
	MaxFetchBodyBytes int64 `yaml:"max_fetch_body_bytes" json:"max_fetch_body_bytes"`
}

// ServerConfig is one entry of the "servers" array in spec.md §6's
// persisted state layout: {name, url, auth}.
type ServerConfig struct {
	Name string      `yaml:"name" json:"name"`
	URL  string      `yaml:"url" json:"url"`
	Auth *AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// AuthConfig is a tagged union of supported credential strategies for one
// upstream, grounded on original_source/crates/pctx/src/mcp/config.rs'
// AuthConfig enum.
type AuthConfig struct {
	Type string `yaml:"type" json:"type"`

	// Bearer / Custom
	Token   string            `yaml:"token,omitempty" json:"token,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Query   map[string]string `yaml:"query,omitempty" json:"query,omitempty"`

	// OAuthClientCredentials
	ClientID     string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	TokenURL     string `yaml:"token_url,omitempty" json:"token_url,omitempty"`
	Scope        string `yaml:"scope,omitempty" json:"scope,omitempty"`
}

// Auth type constants, mirrored from the AuthConfig tag values accepted in
// YAML.
const (
	AuthTypeBearer                 = "bearer"
	AuthTypeCustom                 = "custom"
	AuthTypeOAuthClientCredentials = "oauth-client-credentials"
)

// Defaults applies the resource-ceiling defaults from spec.md §4.5 and §5
// ("timeout_ms is clamped to [1, 10_000]", "execution timeout 10s",
// "per-execution upstream-call count soft-cap (e.g., 100)",
// "response body size cap on fetch (e.g., 10 MB)") when the config omits
// them.
func (c *Config) Defaults() {
	if c.Name == "" {
		c.Name = "codeexec-gateway"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:9090"
	}
	if c.Endpoint == "" {
		c.Endpoint = "/mcp"
	}
	if c.Execution.DefaultTimeoutMS == 0 {
		c.Execution.DefaultTimeoutMS = 10_000
	}
	if c.Execution.MaxTimeoutMS == 0 {
		c.Execution.MaxTimeoutMS = 10_000
	}
	if c.Execution.MaxUpstreamCalls == 0 {
		c.Execution.MaxUpstreamCalls = 100
	}
	if c.Execution.MaxFetchBodyBytes == 0 {
		c.Execution.MaxFetchBodyBytes = 10 * 1024 * 1024
	}
}

// Validate enforces spec.md §3's Catalog invariant ("upstream names are
// unique and match [a-zA-Z_][a-zA-Z0-9_]*") fatally at load time
// (ErrConfigInvalid per spec.md §7).
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if !ValidIdentifier(s.Name) {
			return fmt.Errorf("config: upstream name %q is not a valid identifier: %w", s.Name, gwerrors.ErrConfigInvalid)
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate upstream name %q: %w", s.Name, gwerrors.ErrConfigInvalid)
		}
		seen[s.Name] = true
		if s.URL == "" {
			return fmt.Errorf("config: upstream %q has no url: %w", s.Name, gwerrors.ErrConfigInvalid)
		}
		if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: upstream %q url %q is not an absolute URL: %w", s.Name, s.URL, gwerrors.ErrConfigInvalid)
		}
	}
	return nil
}

// Load reads the configuration document from path, applying environment
// overrides via viper (PCTX_* prefix) and defaults. This is the CLI's
// ConfigLoader implementation; the core never calls Load directly.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PCTX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %v: %w", path, err, gwerrors.ErrConfigInvalid)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %v: %w", path, err, gwerrors.ErrConfigInvalid)
	}

	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExecutionTimeout returns the configured default timeout as a
// time.Duration, for convenience at call sites.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Execution.DefaultTimeoutMS) * time.Millisecond
}
