// Package config holds xchecker's configuration: packet budgets, redaction
// overrides, lock drift mode, validation strictness, and phase timeouts.
// Loaded the way codeNERD loads its config — YAML file over defaults, then
// environment variable overrides — but scoped to this orchestrator's needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"xchecker/internal/xlog"
)

// DriftMode controls how the Lock Manager reacts to a lockfile/CLI mismatch.
type DriftMode string

const (
	DriftWarn   DriftMode = "warn"
	DriftStrict DriftMode = "strict"
)

// BudgetConfig bounds how much content the Packet Builder may hand to the
// LLM for a single phase.
type BudgetConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	MaxLines int64 `yaml:"max_lines"`
}

// SandboxConfig mirrors sandbox.Config in YAML-friendly form.
type SandboxConfig struct {
	AllowSymlinks  bool `yaml:"allow_symlinks"`
	AllowHardlinks bool `yaml:"allow_hardlinks"`
}

// RedactionConfig extends the builtin pattern set.
type RedactionConfig struct {
	ExtraPatterns map[string]string `yaml:"extra_patterns"` // id -> regexp source
	Ignore        []string          `yaml:"ignore"`
}

// SelectorConfig controls which files the Selector walks.
type SelectorConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// ValidationConfig controls the Validator's strictness.
type ValidationConfig struct {
	Strict             bool           `yaml:"strict"`
	MinLength          map[string]int `yaml:"min_length"` // phase id -> minimum chars
}

// Config is the top-level xchecker configuration.
type Config struct {
	RepoRoot string `yaml:"repo_root"`

	Budget    BudgetConfig     `yaml:"budget"`
	Sandbox   SandboxConfig    `yaml:"sandbox"`
	Redaction RedactionConfig  `yaml:"redaction"`
	Selector  SelectorConfig   `yaml:"selector"`
	Validate  ValidationConfig `yaml:"validate"`

	LockDrift DriftMode `yaml:"lock_drift"`
	LockTTL   string    `yaml:"lock_ttl"`

	PhaseTimeout string `yaml:"phase_timeout"`

	DebugPackets bool `yaml:"debug_packets"`
	DebugMode    bool `yaml:"debug_mode"`

	ModelFullName  string `yaml:"model_full_name"`
	LLMCLIVersion  string `yaml:"llm_cli_version"`
	SuppressLLM    bool   `yaml:"-"` // set only from XCHECKER_SUPPRESS_LLM, used by self-test
}

// DefaultConfig returns xchecker's default configuration.
func DefaultConfig() *Config {
	return &Config{
		RepoRoot: ".",
		Budget: BudgetConfig{
			MaxBytes: 256 * 1024,
			MaxLines: 8000,
		},
		Sandbox: SandboxConfig{
			AllowSymlinks:  false,
			AllowHardlinks: false,
		},
		Selector: SelectorConfig{
			Include: []string{"**/*.md", "**/*.yaml", "**/*.yml", "**/*.toml", "**/*.txt", "docs/**"},
			Exclude: []string{
				"**/.git/**", "**/.xchecker/**", "**/node_modules/**",
				"**/vendor/**", "**/dist/**", "**/build/**", "**/.cache/**",
			},
		},
		Validate: ValidationConfig{
			Strict: false,
			MinLength: map[string]int{
				"requirements": 400,
				"design":       400,
				"tasks":        200,
				"review":       100,
				"fixup":        0,
			},
		},
		LockDrift:    DriftWarn,
		LockTTL:      "30m",
		PhaseTimeout: "10m",
		DebugPackets: false,
		DebugMode:    false,
	}
}

// Load loads configuration from a YAML file, falling back to defaults if
// path does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	xlog.BootDebug("loading config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			xlog.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// PhaseTimeoutDuration parses PhaseTimeout, defaulting to 10 minutes on a
// parse failure or empty value.
func (c *Config) PhaseTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.PhaseTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// LockTTLDuration parses LockTTL, defaulting to 30 minutes.
func (c *Config) LockTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.LockTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// applyEnvOverrides layers XCHECKER_* environment variables on top of
// whatever was loaded from the YAML file, mirroring the teacher's
// API-key-from-environment pattern but for this orchestrator's knobs.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("XCHECKER_REPO_ROOT"); v != "" {
		c.RepoRoot = v
	}
	if v := os.Getenv("XCHECKER_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Budget.MaxBytes = n
		}
	}
	if v := os.Getenv("XCHECKER_MAX_LINES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Budget.MaxLines = n
		}
	}
	if v := os.Getenv("XCHECKER_LOCK_DRIFT"); v != "" {
		switch DriftMode(v) {
		case DriftWarn, DriftStrict:
			c.LockDrift = DriftMode(v)
		}
	}
	if v := os.Getenv("XCHECKER_STRICT_VALIDATION"); v != "" {
		c.Validate.Strict = v == "1" || v == "true"
	}
	if v := os.Getenv("XCHECKER_DEBUG_PACKETS"); v != "" {
		c.DebugPackets = v == "1" || v == "true"
	}
	if v := os.Getenv("XCHECKER_DEBUG_MODE"); v != "" {
		c.DebugMode = v == "1" || v == "true"
	}
	if v := os.Getenv("XCHECKER_PHASE_TIMEOUT"); v != "" {
		c.PhaseTimeout = v
	}
	// Consulted only so self-tests (and the doctor command, out of this
	// core's scope) can suppress real LLM invocation.
	if v := os.Getenv("XCHECKER_SUPPRESS_LLM"); v != "" {
		c.SuppressLLM = v == "1" || v == "true"
	}
}
