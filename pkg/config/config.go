// Package config loads the converter configuration file. The on-disk format
// is JSON; YAML is accepted as a convenience for hand-edited files. Secrets
// may be supplied through the environment instead of the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ontoforge/ontoforge/pkg/fabric"
	"github.com/ontoforge/ontoforge/pkg/model"
)

// Environment overrides. File values lose to these so credentials can stay
// out of checked-in configs.
const (
	EnvWorkspaceID  = "FABRIC_WORKSPACE_ID"
	EnvTenantID     = "FABRIC_TENANT_ID"
	EnvClientID     = "FABRIC_CLIENT_ID"
	EnvClientSecret = "FABRIC_CLIENT_SECRET"
)

// Config is the root of the configuration file.
type Config struct {
	Fabric   Fabric   `json:"fabric" yaml:"fabric"`
	Logging  Logging  `json:"logging" yaml:"logging"`
	Ontology Ontology `json:"ontology" yaml:"ontology"`
}

// Fabric configures the API client.
type Fabric struct {
	WorkspaceID        string         `json:"workspace_id" yaml:"workspace_id"`
	APIBaseURL         string         `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
	TenantID           string         `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	ClientID           string         `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret       string         `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	UseInteractiveAuth bool           `json:"use_interactive_auth,omitempty" yaml:"use_interactive_auth,omitempty"`
	RateLimit          RateLimit      `json:"rate_limit" yaml:"rate_limit"`
	CircuitBreaker     CircuitBreaker `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// RateLimit tunes the client token bucket.
type RateLimit struct {
	Enabled           *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	RequestsPerMinute int   `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	Burst             int   `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// CircuitBreaker tunes the client breaker. RecoveryTimeout is in seconds.
type CircuitBreaker struct {
	Enabled          *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	FailureThreshold int   `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	RecoveryTimeout  int   `json:"recovery_timeout,omitempty" yaml:"recovery_timeout,omitempty"`
	SuccessThreshold int   `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
}

// Logging selects handler, level, and optional rotating file output.
type Logging struct {
	Level    string   `json:"level,omitempty" yaml:"level,omitempty"`
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	Format   string   `json:"format,omitempty" yaml:"format,omitempty"`
	Rotation Rotation `json:"rotation" yaml:"rotation"`
}

// Rotation bounds the log file.
type Rotation struct {
	Enabled     bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxMB       int  `json:"max_mb,omitempty" yaml:"max_mb,omitempty"`
	BackupCount int  `json:"backup_count,omitempty" yaml:"backup_count,omitempty"`
}

// Ontology holds conversion defaults.
type Ontology struct {
	IDPrefix int64 `json:"id_prefix,omitempty" yaml:"id_prefix,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path (JSON, or YAML by extension), applies defaults and
// environment overrides, and validates. An empty path yields the default
// configuration with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Fabric.APIBaseURL == "" {
		c.Fabric.APIBaseURL = fabric.DefaultBaseURL
	}
	if c.Fabric.RateLimit.RequestsPerMinute == 0 {
		c.Fabric.RateLimit.RequestsPerMinute = fabric.DefaultRateRequests
	}
	if c.Fabric.CircuitBreaker.FailureThreshold == 0 {
		c.Fabric.CircuitBreaker.FailureThreshold = fabric.DefaultFailureThreshold
	}
	if c.Fabric.CircuitBreaker.SuccessThreshold == 0 {
		c.Fabric.CircuitBreaker.SuccessThreshold = fabric.DefaultSuccessThreshold
	}
	if c.Fabric.CircuitBreaker.RecoveryTimeout == 0 {
		c.Fabric.CircuitBreaker.RecoveryTimeout = int(fabric.DefaultRecoveryTimeout / time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Rotation.MaxMB == 0 {
		c.Logging.Rotation.MaxMB = 10
	}
	if c.Logging.Rotation.BackupCount == 0 {
		c.Logging.Rotation.BackupCount = 5
	}
	if c.Ontology.IDPrefix == 0 {
		c.Ontology.IDPrefix = model.DefaultIDPrefix
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvWorkspaceID); v != "" {
		c.Fabric.WorkspaceID = v
	}
	if v := os.Getenv(EnvTenantID); v != "" {
		c.Fabric.TenantID = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		c.Fabric.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.Fabric.ClientSecret = v
	}
}

// Validate rejects values the rest of the system would misinterpret.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown logging format %q (want text or json)", c.Logging.Format)
	}
	if c.Fabric.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("config: rate_limit.requests_per_minute must not be negative")
	}
	if c.Fabric.CircuitBreaker.FailureThreshold < 0 ||
		c.Fabric.CircuitBreaker.SuccessThreshold < 0 ||
		c.Fabric.CircuitBreaker.RecoveryTimeout < 0 {
		return fmt.Errorf("config: circuit_breaker thresholds must not be negative")
	}
	if c.Ontology.IDPrefix < 0 {
		return fmt.Errorf("config: ontology.id_prefix must not be negative")
	}
	return nil
}

func enabled(flag *bool) bool { return flag == nil || *flag }

// ClientConfig maps the file values onto the API client configuration.
// Disabled rate limiting or breaking maps to the client's "off" sentinels.
func (c *Config) ClientConfig() fabric.Config {
	out := fabric.Config{
		BaseURL:     c.Fabric.APIBaseURL,
		WorkspaceID: c.Fabric.WorkspaceID,
		Credentials: fabric.Credentials{
			TenantID:           c.Fabric.TenantID,
			ClientID:           c.Fabric.ClientID,
			ClientSecret:       c.Fabric.ClientSecret,
			UseInteractiveAuth: c.Fabric.UseInteractiveAuth,
		},
		RateRequests: c.Fabric.RateLimit.RequestsPerMinute,
		RatePer:      time.Minute,
		RateBurst:    c.Fabric.RateLimit.Burst,

		FailureThreshold: c.Fabric.CircuitBreaker.FailureThreshold,
		SuccessThreshold: c.Fabric.CircuitBreaker.SuccessThreshold,
		RecoveryTimeout:  time.Duration(c.Fabric.CircuitBreaker.RecoveryTimeout) * time.Second,
	}
	if !enabled(c.Fabric.RateLimit.Enabled) {
		out.RateRequests = -1
	}
	if !enabled(c.Fabric.CircuitBreaker.Enabled) {
		out.FailureThreshold = -1
	}
	return out
}
