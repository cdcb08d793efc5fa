package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ProvdYAMLConfig represents the complete provd.yaml file structure.
// Duration fields are strings ("30s", "12h") parsed during resolution.
type ProvdYAMLConfig struct {
	Server    *ServerYAMLConfig    `yaml:"server"`
	Auth      *AuthYAMLConfig      `yaml:"auth"`
	Limits    *LimitsConfig        `yaml:"limits"`
	RateLimit *RateLimitConfig     `yaml:"rate_limit"`
	Consensus *ConsensusYAMLConfig `yaml:"consensus"`
	Scheduler *SchedulerYAMLConfig `yaml:"scheduler"`
	Webhook   *WebhookYAMLConfig   `yaml:"webhook"`
	Audit     *AuditYAMLConfig     `yaml:"audit"`
	Retention *RetentionYAMLConfig `yaml:"retention"`
	Store     *StoreYAMLConfig     `yaml:"store"`
	Intel     *IntelYAMLConfig     `yaml:"intel"`
	CacheURL  string               `yaml:"cache_url"`
}

// ServerYAMLConfig holds HTTP server settings from YAML.
type ServerYAMLConfig struct {
	Port            int    `yaml:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// AuthYAMLConfig holds API-key auth settings from YAML.
type AuthYAMLConfig struct {
	RequireAPIKey *bool    `yaml:"require_api_key,omitempty"`
	APIKeyHeader  string   `yaml:"api_key_header,omitempty"`
	APIKeys       []string `yaml:"api_keys,omitempty"`
}

// ConsensusYAMLConfig holds consensus settings from YAML.
type ConsensusYAMLConfig struct {
	Enabled         *bool                         `yaml:"enabled,omitempty"`
	ProviderTimeout string                        `yaml:"provider_timeout,omitempty"`
	InternalWeight  *float64                      `yaml:"internal_weight,omitempty"`
	RetryAttempts   *int                          `yaml:"provider_retry_attempts,omitempty"`
	Providers       map[string]ProviderYAMLConfig `yaml:"providers,omitempty"`
	Thresholds      map[string]float64            `yaml:"thresholds,omitempty"`
}

// ProviderYAMLConfig holds one external provider's settings from YAML.
type ProviderYAMLConfig struct {
	Weight     float64  `yaml:"weight"`
	Endpoint   string   `yaml:"endpoint"`
	APIKeyEnv  string   `yaml:"api_key_env,omitempty"`
	Modalities []string `yaml:"modalities,omitempty"`
}

// SchedulerYAMLConfig holds scheduler settings from YAML.
type SchedulerYAMLConfig struct {
	Enabled           *bool           `yaml:"enabled,omitempty"`
	TickInterval      string          `yaml:"tick_interval,omitempty"`
	MonthlyRequestCap *int            `yaml:"monthly_request_cap,omitempty"`
	KillSwitchOnCap   *bool           `yaml:"kill_switch_on_cap,omitempty"`
	UsageFile         string          `yaml:"usage_file,omitempty"`
	MaxConcurrentRuns int             `yaml:"max_concurrent_runs,omitempty"`
	MaxRetryBackoff   string          `yaml:"max_retry_backoff,omitempty"`
	Jobs              []JobYAMLConfig `yaml:"jobs,omitempty"`
}

// JobYAMLConfig holds one recurring job's settings from YAML.
type JobYAMLConfig struct {
	Handle     string `yaml:"handle"`
	Interval   string `yaml:"interval"`
	WindowDays int    `yaml:"window_days"`
	MaxPosts   int    `yaml:"max_posts"`
}

// WebhookYAMLConfig holds webhook delivery settings from YAML.
type WebhookYAMLConfig struct {
	URLs           []string `yaml:"urls,omitempty"`
	SecretEnv      string   `yaml:"secret_env,omitempty"`
	MaxAttempts    int      `yaml:"max_attempts,omitempty"`
	BaseBackoff    string   `yaml:"base_backoff,omitempty"`
	MaxBackoff     string   `yaml:"max_backoff,omitempty"`
	Timeout        string   `yaml:"timeout,omitempty"`
	DrainInterval  string   `yaml:"drain_interval,omitempty"`
	QueueFile      string   `yaml:"queue_file,omitempty"`
	DeadLetterFile string   `yaml:"dead_letter_file,omitempty"`
}

// AuditYAMLConfig holds audit pipeline settings from YAML.
type AuditYAMLConfig struct {
	Enabled         *bool `yaml:"enabled,omitempty"`
	RingCapacity    int   `yaml:"ring_capacity,omitempty"`
	LogHTTPRequests *bool `yaml:"log_http_requests,omitempty"`
}

// RetentionYAMLConfig holds retention settings from YAML.
type RetentionYAMLConfig struct {
	AnalysisRetentionDays int    `yaml:"analysis_retention_days,omitempty"`
	EventTTLDays          int    `yaml:"event_ttl_days,omitempty"`
	CleanupInterval       string `yaml:"cleanup_interval,omitempty"`
}

// StoreYAMLConfig holds analysis store settings from YAML.
type StoreYAMLConfig struct {
	DedupWindow  string `yaml:"dedup_window,omitempty"`
	ExportRowCap int    `yaml:"export_row_cap,omitempty"`
}

// IntelYAMLConfig holds the upstream intel API client settings from YAML.
type IntelYAMLConfig struct {
	APIBaseURL     string `yaml:"api_base_url,omitempty"`
	BearerTokenEnv string `yaml:"bearer_token_env,omitempty"`
	PageSize       int    `yaml:"page_size,omitempty"`
	MaxPages       int    `yaml:"max_pages,omitempty"`
	RequestTimeout string `yaml:"request_timeout,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load provd.yaml from configDir (defaults apply when absent)
//  2. Expand environment variables
//  3. Merge user-defined values over built-in defaults
//  4. Validate all configuration
//  5. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"rate_buckets", stats.RateBuckets,
		"scheduled_jobs", stats.ScheduledJobs,
		"webhook_targets", stats.WebhookTargets)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadProvdYAML()
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Warn("provd.yaml not found, using built-in defaults", "config_dir", configDir)
			yamlCfg = &ProvdYAMLConfig{}
		} else {
			return nil, NewLoadError("provd.yaml", err)
		}
	}

	// Plain numeric sections merge user YAML over built-in defaults.
	limits := DefaultLimitsConfig()
	if yamlCfg.Limits != nil {
		if err := mergo.Merge(limits, yamlCfg.Limits, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge limits config: %w", err)
		}
	}

	rateLimit := DefaultRateLimitConfig()
	if yamlCfg.RateLimit != nil {
		if err := mergo.Merge(rateLimit, yamlCfg.RateLimit, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge rate_limit config: %w", err)
		}
	}

	// Duration-bearing sections go through resolve functions.
	return &Config{
		configDir: configDir,
		Server:    resolveServerConfig(yamlCfg.Server),
		Auth:      resolveAuthConfig(yamlCfg.Auth),
		Limits:    limits,
		RateLimit: rateLimit,
		Consensus: resolveConsensusConfig(yamlCfg.Consensus),
		Scheduler: resolveSchedulerConfig(yamlCfg.Scheduler),
		Webhook:   resolveWebhookConfig(yamlCfg.Webhook),
		Audit:     resolveAuditConfig(yamlCfg.Audit),
		Retention: resolveRetentionConfig(yamlCfg.Retention),
		Store:     resolveStoreConfig(yamlCfg.Store),
		Intel:     resolveIntelConfig(yamlCfg.Intel),
		CacheURL:  yamlCfg.CacheURL,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing the YAML parser to handle the content (or fail with a clearer
	// error message).
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadProvdYAML() (*ProvdYAMLConfig, error) {
	var config ProvdYAMLConfig
	if err := l.loadYAML("provd.yaml", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// parseDuration parses s, logging and returning fallback on bad input.
func parseDuration(s, field string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("Invalid duration in config, using default",
			"field", field,
			"value", s,
			"default", fallback,
			"error", err)
		return fallback
	}
	return d
}

// resolveServerConfig resolves server configuration from YAML, applying defaults.
func resolveServerConfig(y *ServerYAMLConfig) *ServerConfig {
	cfg := DefaultServerConfig()
	if y == nil {
		return cfg
	}
	if y.Port != 0 {
		cfg.Port = y.Port
	}
	cfg.ShutdownTimeout = parseDuration(y.ShutdownTimeout, "server.shutdown_timeout", cfg.ShutdownTimeout)
	return cfg
}

// resolveAuthConfig resolves auth configuration from YAML, applying defaults.
func resolveAuthConfig(y *AuthYAMLConfig) *AuthConfig {
	cfg := DefaultAuthConfig()
	if y == nil {
		return cfg
	}
	if y.RequireAPIKey != nil {
		cfg.RequireAPIKey = *y.RequireAPIKey
	}
	if y.APIKeyHeader != "" {
		cfg.APIKeyHeader = y.APIKeyHeader
	}
	if len(y.APIKeys) > 0 {
		cfg.APIKeys = y.APIKeys
	}
	return cfg
}

// resolveConsensusConfig resolves consensus configuration from YAML, applying defaults.
func resolveConsensusConfig(y *ConsensusYAMLConfig) *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	if y == nil {
		return cfg
	}
	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	cfg.ProviderTimeout = parseDuration(y.ProviderTimeout, "consensus.provider_timeout", cfg.ProviderTimeout)
	if y.InternalWeight != nil {
		cfg.InternalWeight = *y.InternalWeight
	}
	if y.RetryAttempts != nil && *y.RetryAttempts > 0 {
		cfg.RetryAttempts = *y.RetryAttempts
	}
	for name, p := range y.Providers {
		cfg.Providers[name] = &ProviderConfig{
			Weight:     p.Weight,
			Endpoint:   p.Endpoint,
			APIKeyEnv:  p.APIKeyEnv,
			Modalities: p.Modalities,
		}
	}
	for modality, threshold := range y.Thresholds {
		cfg.Thresholds[modality] = threshold
	}
	return cfg
}

// resolveSchedulerConfig resolves scheduler configuration from YAML, applying defaults.
func resolveSchedulerConfig(y *SchedulerYAMLConfig) *SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	if y == nil {
		return cfg
	}
	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	cfg.TickInterval = parseDuration(y.TickInterval, "scheduler.tick_interval", cfg.TickInterval)
	if y.MonthlyRequestCap != nil {
		cfg.MonthlyRequestCap = *y.MonthlyRequestCap
	}
	if y.KillSwitchOnCap != nil {
		cfg.KillSwitchOnCap = *y.KillSwitchOnCap
	}
	if y.UsageFile != "" {
		cfg.UsageFile = y.UsageFile
	}
	if y.MaxConcurrentRuns > 0 {
		cfg.MaxConcurrentRuns = y.MaxConcurrentRuns
	}
	cfg.MaxRetryBackoff = parseDuration(y.MaxRetryBackoff, "scheduler.max_retry_backoff", cfg.MaxRetryBackoff)
	for _, j := range y.Jobs {
		cfg.Jobs = append(cfg.Jobs, JobConfig{
			Handle:     j.Handle,
			Interval:   parseDuration(j.Interval, "scheduler.jobs.interval", 24*time.Hour),
			WindowDays: j.WindowDays,
			MaxPosts:   j.MaxPosts,
		})
	}
	return cfg
}

// resolveWebhookConfig resolves webhook configuration from YAML, applying defaults.
func resolveWebhookConfig(y *WebhookYAMLConfig) *WebhookConfig {
	cfg := DefaultWebhookConfig()
	if y == nil {
		return cfg
	}
	if len(y.URLs) > 0 {
		cfg.URLs = y.URLs
	}
	if y.SecretEnv != "" {
		cfg.SecretEnv = y.SecretEnv
	}
	if y.MaxAttempts > 0 {
		cfg.MaxAttempts = y.MaxAttempts
	}
	cfg.BaseBackoff = parseDuration(y.BaseBackoff, "webhook.base_backoff", cfg.BaseBackoff)
	cfg.MaxBackoff = parseDuration(y.MaxBackoff, "webhook.max_backoff", cfg.MaxBackoff)
	cfg.Timeout = parseDuration(y.Timeout, "webhook.timeout", cfg.Timeout)
	cfg.DrainInterval = parseDuration(y.DrainInterval, "webhook.drain_interval", cfg.DrainInterval)
	if y.QueueFile != "" {
		cfg.QueueFile = y.QueueFile
	}
	if y.DeadLetterFile != "" {
		cfg.DeadLetterFile = y.DeadLetterFile
	}
	return cfg
}

// resolveAuditConfig resolves audit configuration from YAML, applying defaults.
func resolveAuditConfig(y *AuditYAMLConfig) *AuditConfig {
	cfg := DefaultAuditConfig()
	if y == nil {
		return cfg
	}
	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	if y.RingCapacity > 0 {
		cfg.RingCapacity = y.RingCapacity
	}
	if y.LogHTTPRequests != nil {
		cfg.LogHTTPRequests = *y.LogHTTPRequests
	}
	return cfg
}

// resolveRetentionConfig resolves retention configuration from YAML, applying defaults.
func resolveRetentionConfig(y *RetentionYAMLConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()
	if y == nil {
		return cfg
	}
	if y.AnalysisRetentionDays > 0 {
		cfg.AnalysisRetentionDays = y.AnalysisRetentionDays
	}
	if y.EventTTLDays > 0 {
		cfg.EventTTLDays = y.EventTTLDays
	}
	cfg.CleanupInterval = parseDuration(y.CleanupInterval, "retention.cleanup_interval", cfg.CleanupInterval)
	return cfg
}

// resolveStoreConfig resolves analysis store configuration from YAML, applying defaults.
func resolveStoreConfig(y *StoreYAMLConfig) *StoreConfig {
	cfg := DefaultStoreConfig()
	if y == nil {
		return cfg
	}
	cfg.DedupWindow = parseDuration(y.DedupWindow, "store.dedup_window", cfg.DedupWindow)
	if y.ExportRowCap > 0 {
		cfg.ExportRowCap = y.ExportRowCap
	}
	return cfg
}

// resolveIntelConfig resolves intel client configuration from YAML, applying defaults.
func resolveIntelConfig(y *IntelYAMLConfig) *IntelConfig {
	cfg := DefaultIntelConfig()
	if y == nil {
		return cfg
	}
	if y.APIBaseURL != "" {
		cfg.APIBaseURL = y.APIBaseURL
	}
	if y.BearerTokenEnv != "" {
		cfg.BearerTokenEnv = y.BearerTokenEnv
	}
	if y.PageSize > 0 {
		cfg.PageSize = y.PageSize
	}
	if y.MaxPages > 0 {
		cfg.MaxPages = y.MaxPages
	}
	cfg.RequestTimeout = parseDuration(y.RequestTimeout, "intel.request_timeout", cfg.RequestTimeout)
	return cfg
}
