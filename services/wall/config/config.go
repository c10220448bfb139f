// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides configuration loading for the validation wall.
//
// Configuration resolves in three layers: embedded YAML defaults, an
// optional external file (RAMPART_CONFIG_PATH or ./config/wall_config.yaml),
// and environment variable overrides for deployment knobs. The merged
// result is validated before use; a Watcher can hot-reload the external
// file with a validation-gated atomic swap.
//
// Thread Safety:
//
//	Config values are immutable after Load. The Watcher publishes new
//	snapshots atomically.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

// MaxYAMLFileSize is the maximum allowed config file size (1MB).
const MaxYAMLFileSize = 1024 * 1024

// configValidate is the validator instance for config structs.
var configValidate = validator.New()

// =============================================================================
// Sections
// =============================================================================

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`

	// Port serves the wall API.
	Port int `yaml:"port" validate:"gte=1,lte=65535"`

	// TelemetryPort serves /metrics and health probes.
	TelemetryPort int `yaml:"telemetry_port" validate:"gte=1,lte=65535"`
}

// RateBudget is one sliding-window allowance.
type RateBudget struct {
	// Limit is the number of allowed calls per window.
	Limit int `yaml:"limit" validate:"gte=1"`

	// WindowSeconds is the sliding window length.
	WindowSeconds int `yaml:"window_seconds" validate:"gte=1"`
}

// Window returns the window as a duration.
func (b RateBudget) Window() time.Duration {
	return time.Duration(b.WindowSeconds) * time.Second
}

// TierRateBudgets holds one budget per orderable risk tier.
type TierRateBudgets struct {
	Safe      RateBudget `yaml:"safe"`
	Review    RateBudget `yaml:"review"`
	Confirm   RateBudget `yaml:"confirm"`
	OwnerRoot RateBudget `yaml:"owner_root"`
}

// ByLevel returns the budgets keyed by risk level.
func (t TierRateBudgets) ByLevel() map[decision.RiskLevel]RateBudget {
	return map[decision.RiskLevel]RateBudget{
		decision.RiskSafe:      t.Safe,
		decision.RiskReview:    t.Review,
		decision.RiskConfirm:   t.Confirm,
		decision.RiskOwnerRoot: t.OwnerRoot,
	}
}

// TierTimeouts holds per-tier sandbox execution deadlines.
type TierTimeouts struct {
	SafeSeconds      int `yaml:"safe_seconds" validate:"gte=1"`
	ReviewSeconds    int `yaml:"review_seconds" validate:"gte=1"`
	ConfirmSeconds   int `yaml:"confirm_seconds" validate:"gte=1"`
	OwnerRootSeconds int `yaml:"owner_root_seconds" validate:"gte=1"`
}

// ByLevel returns the deadlines keyed by risk level.
func (t TierTimeouts) ByLevel() map[decision.RiskLevel]time.Duration {
	return map[decision.RiskLevel]time.Duration{
		decision.RiskSafe:      time.Duration(t.SafeSeconds) * time.Second,
		decision.RiskReview:    time.Duration(t.ReviewSeconds) * time.Second,
		decision.RiskConfirm:   time.Duration(t.ConfirmSeconds) * time.Second,
		decision.RiskOwnerRoot: time.Duration(t.OwnerRootSeconds) * time.Second,
	}
}

// PolicyConfig configures the policy tier's lists and limits.
type PolicyConfig struct {
	// AllowedDomains is the network host allow-list. Hosts not on it
	// raise UNLISTED_DOMAIN warnings; subdomains of listed hosts pass.
	AllowedDomains []string `yaml:"allowed_domains"`

	// DeniedPaths are filesystem prefixes no action may touch.
	DeniedPaths []string `yaml:"denied_paths"`

	// DangerousExtensions raise DANGEROUS_EXTENSION warnings.
	DangerousExtensions []string `yaml:"dangerous_extensions"`

	// SoftPayloadBytes is the warn ceiling for content arguments.
	SoftPayloadBytes int `yaml:"soft_payload_bytes" validate:"gte=1"`

	// HardPayloadBytes is the block ceiling for content arguments.
	HardPayloadBytes int `yaml:"hard_payload_bytes" validate:"gtefield=SoftPayloadBytes"`
}

// FailurePolicy maps a verification failure to its consequence per tier.
// "warn" downgrades the failure to a warning; "block" fails the result.
type FailurePolicy struct {
	Safe      string `yaml:"safe" validate:"oneof=warn block"`
	Review    string `yaml:"review" validate:"oneof=warn block"`
	Confirm   string `yaml:"confirm" validate:"oneof=warn block"`
	OwnerRoot string `yaml:"owner_root" validate:"oneof=warn block"`
}

// BlocksAt reports whether a verification failure blocks at the level.
func (p FailurePolicy) BlocksAt(level decision.RiskLevel) bool {
	switch level {
	case decision.RiskSafe:
		return p.Safe == "block"
	case decision.RiskReview:
		return p.Review == "block"
	case decision.RiskConfirm:
		return p.Confirm == "block"
	case decision.RiskOwnerRoot:
		return p.OwnerRoot == "block"
	default:
		// Unknown tiers fail secure.
		return true
	}
}

// VerifyConfig configures post-execution verification.
type VerifyConfig struct {
	// EntailmentThreshold is the minimum judge confidence for a claim
	// to count as supported.
	EntailmentThreshold float64 `yaml:"entailment_threshold" validate:"gte=0,lte=1"`

	// CoverageThreshold is the minimum fraction of summary sentences
	// backed by at least one claim.
	CoverageThreshold float64 `yaml:"coverage_threshold" validate:"gte=0,lte=1"`

	// CalendarToleranceMinutes bounds the drift between requested and
	// created event times.
	CalendarToleranceMinutes int `yaml:"calendar_tolerance_minutes" validate:"gte=0"`

	// MaxConcurrentClaims bounds claim-judging parallelism.
	MaxConcurrentClaims int `yaml:"max_concurrent_claims" validate:"gte=1"`

	// FailurePolicy decides warn-vs-block per risk tier.
	FailurePolicy FailurePolicy `yaml:"failure_policy"`
}

// JudgeConfig configures the entailment judge.
type JudgeConfig struct {
	// Provider selects the judge backend: "openai" or "lexical".
	Provider string `yaml:"provider" validate:"oneof=openai lexical"`

	// Model is the provider model name.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint (local gateways).
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in configuration files.
	APIKeyEnv string `yaml:"api_key_env"`

	// TimeoutSeconds bounds one judge call.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=1"`

	// RequestsPerSecond limits outbound judge traffic.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`

	// MaxConcurrent bounds in-flight judge calls.
	MaxConcurrent int `yaml:"max_concurrent" validate:"gte=1"`

	// CacheDir persists the verdict cache. Empty keeps it in memory.
	CacheDir string `yaml:"cache_dir"`

	// CacheTTLHours bounds verdict reuse.
	CacheTTLHours int `yaml:"cache_ttl_hours" validate:"gte=0"`
}

// Timeout returns the per-call deadline.
func (j JudgeConfig) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// CacheTTL returns the verdict TTL.
func (j JudgeConfig) CacheTTL() time.Duration {
	return time.Duration(j.CacheTTLHours) * time.Hour
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Dir holds the three JSONL streams.
	Dir string `yaml:"dir" validate:"required"`

	// RetentionDays bounds how long entries survive Cleanup.
	RetentionDays int `yaml:"retention_days" validate:"gte=1"`
}

// Retention returns the retention window.
func (a AuditConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// CitationsConfig configures the citation store.
type CitationsConfig struct {
	// Dir holds pages/ and index/.
	Dir string `yaml:"dir" validate:"required"`

	// MaxPageBytes bounds one stored page.
	MaxPageBytes int `yaml:"max_page_bytes" validate:"gte=1"`
}

// ResearchConfig configures research-family handling.
type ResearchConfig struct {
	// MinRisk is the floor applied to every research-family action at
	// startup. The shipped default is safe; deployments that must gate
	// autonomous research raise it here rather than patching the catalog.
	MinRisk decision.RiskLevel `yaml:"min_risk"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto text json"`
	Dir    string `yaml:"dir"`
}

// TelemetryConfig configures tracing and metrics exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	Environment    string `yaml:"environment"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// =============================================================================
// Config Root
// =============================================================================

// Config is the full wall configuration.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	RateBudgets TierRateBudgets `yaml:"rate_budgets"`
	Timeouts    TierTimeouts    `yaml:"execution_timeouts"`
	Policy      PolicyConfig    `yaml:"policy"`
	Verify      VerifyConfig    `yaml:"verify"`
	Judge       JudgeConfig     `yaml:"judge"`
	Audit       AuditConfig     `yaml:"audit"`
	Citations   CitationsConfig `yaml:"citations"`
	Research    ResearchConfig  `yaml:"research"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Validate checks the merged configuration. Struct tags carry the field
// rules; cross-field constraints that tags cannot express live here.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Research.MinRisk == decision.RiskBlocked {
		return fmt.Errorf("%w: research min_risk cannot be blocked", ErrInvalidConfig)
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load resolves the three layers and validates the result.
//
// Description:
//
//	Starts from the embedded defaults, overlays the external file when
//	one exists (fields present in the file win, absent fields keep
//	their defaults), then applies environment overrides.
//
// Outputs:
//
//	*Config - Validated configuration.
//	string  - The external file path in effect, empty when embedded only.
//	error   - Non-nil when parsing or validation fails.
func Load() (*Config, string, error) {
	cfg, err := Default()
	if err != nil {
		return nil, "", err
	}

	path := externalConfigPath()
	if path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// LoadFile resolves defaults plus one explicit file, for the CLI.
func LoadFile(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := overlayFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// externalConfigPath returns the configured override path, or empty.
func externalConfigPath() string {
	if path := os.Getenv("RAMPART_CONFIG_PATH"); path != "" {
		return path
	}
	locations := []string{
		"./config/wall_config.yaml",
		"./wall_config.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}
	return ""
}

// overlayFile unmarshals one file over the config in place.
func overlayFile(cfg *Config, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies the deployment knobs exposed as variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAMPART_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RAMPART_TELEMETRY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.TelemetryPort = port
		}
	}
	if v := os.Getenv("RAMPART_AUDIT_DIR"); v != "" {
		cfg.Audit.Dir = v
	}
	if v := os.Getenv("RAMPART_CITATIONS_DIR"); v != "" {
		cfg.Citations.Dir = v
	}
	if v := os.Getenv("RAMPART_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("RAMPART_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("RAMPART_JUDGE_PROVIDER"); v != "" {
		cfg.Judge.Provider = v
	}
	if v := os.Getenv("RAMPART_JUDGE_MODEL"); v != "" {
		cfg.Judge.Model = v
	}
	if v := os.Getenv("RAMPART_JUDGE_BASE_URL"); v != "" {
		cfg.Judge.BaseURL = v
	}
	if v := os.Getenv("RAMPART_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("RAMPART_TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("RAMPART_METRIC_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("RAMPART_ENVIRONMENT"); v != "" {
		cfg.Telemetry.Environment = v
	}
}
