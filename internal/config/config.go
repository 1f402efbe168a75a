// ABOUTME: Configuration loading and parsing for parley
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by state.backend.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config represents the complete parley configuration.
type Config struct {
	State    StateConfig    `yaml:"state"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StateConfig holds conversation-state persistence configuration.
type StateConfig struct {
	// Backend is "json" (single pretty-printed document) or "sqlite".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// ProtocolConfig holds protocol-level tunables.
type ProtocolConfig struct {
	// MaxDepth is the default depth bound stamped on new conversations.
	MaxDepth int `yaml:"max_depth"`

	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig overrides the per-type timeout windows. Empty values keep
// the protocol defaults.
type TimeoutsConfig struct {
	Request   time.Duration `yaml:"-"`
	Clarify   time.Duration `yaml:"-"`
	Handoff   time.Duration `yaml:"-"`
	Broadcast time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestRaw   string `yaml:"request"`
	ClarifyRaw   string `yaml:"clarify"`
	HandoffRaw   string `yaml:"handoff"`
	BroadcastRaw string `yaml:"broadcast"`
}

// CleanupConfig holds record reclamation configuration.
type CleanupConfig struct {
	MaxAge time.Duration `yaml:"-"`

	MaxAgeRaw string `yaml:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists: JSON state in
// the given path, protocol defaults everywhere else.
func Default(statePath string) *Config {
	return &Config{
		State: StateConfig{
			Backend: BackendJSON,
			Path:    statePath,
		},
		Protocol: ProtocolConfig{
			MaxDepth: 5,
		},
		Cleanup: CleanupConfig{
			MaxAge:    24 * time.Hour,
			MaxAgeRaw: "24h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "", BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("state.backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.State.Backend)
	}

	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if c.Protocol.MaxDepth < 0 {
		return fmt.Errorf("protocol.max_depth must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	pairs := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Protocol.Timeouts.RequestRaw, "protocol.timeouts.request", &cfg.Protocol.Timeouts.Request},
		{cfg.Protocol.Timeouts.ClarifyRaw, "protocol.timeouts.clarify", &cfg.Protocol.Timeouts.Clarify},
		{cfg.Protocol.Timeouts.HandoffRaw, "protocol.timeouts.handoff", &cfg.Protocol.Timeouts.Handoff},
		{cfg.Protocol.Timeouts.BroadcastRaw, "protocol.timeouts.broadcast", &cfg.Protocol.Timeouts.Broadcast},
		{cfg.Cleanup.MaxAgeRaw, "cleanup.max_age", &cfg.Cleanup.MaxAge},
	}

	for _, p := range pairs {
		if p.raw == "" {
			continue
		}
		d, err := time.ParseDuration(p.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", p.name, p.raw, err)
		}
		*p.dst = d
	}

	return nil
}

// TimeoutWindows returns the configured window overrides keyed by message
// type, omitting types left at their protocol default.
func (c *Config) TimeoutWindows() map[string]time.Duration {
	out := map[string]time.Duration{}
	if c.Protocol.Timeouts.Request > 0 {
		out["REQUEST"] = c.Protocol.Timeouts.Request
	}
	if c.Protocol.Timeouts.Clarify > 0 {
		out["CLARIFY"] = c.Protocol.Timeouts.Clarify
	}
	if c.Protocol.Timeouts.Handoff > 0 {
		out["HANDOFF"] = c.Protocol.Timeouts.Handoff
	}
	if c.Protocol.Timeouts.Broadcast > 0 {
		out["BROADCAST"] = c.Protocol.Timeouts.Broadcast
	}
	return out
}
