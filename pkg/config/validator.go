package config

import "fmt"

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateLimits(); err != nil {
		return fmt.Errorf("limits validation failed: %w", err)
	}
	if err := v.validateRateLimit(); err != nil {
		return fmt.Errorf("rate limit validation failed: %w", err)
	}
	if err := v.validateConsensus(); err != nil {
		return fmt.Errorf("consensus validation failed: %w", err)
	}
	if err := v.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}
	if err := v.validateWebhook(); err != nil {
		return fmt.Errorf("webhook validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "http", "port", fmt.Errorf("must be 1-65535, got %d", s.Port))
	}
	if s.ShutdownTimeout <= 0 {
		return NewValidationError("server", "http", "shutdown_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateLimits() error {
	l := v.cfg.Limits
	if l.MinTextLength < 1 {
		return NewValidationError("limits", "text", "min_text_length", fmt.Errorf("must be at least 1"))
	}
	if l.MaxTextLength <= l.MinTextLength {
		return NewValidationError("limits", "text", "max_text_length",
			fmt.Errorf("must exceed min_text_length (%d)", l.MinTextLength))
	}
	if l.MaxImageSizeMB < 1 || l.MaxAudioSizeMB < 1 || l.MaxVideoSizeMB < 1 {
		return NewValidationError("limits", "media", "max_size_mb", fmt.Errorf("must be at least 1"))
	}
	if l.MaxBatchItems < 1 {
		return NewValidationError("limits", "batch", "max_batch_items", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateRateLimit() error {
	rl := v.cfg.RateLimit
	if _, ok := rl.Buckets["default"]; !ok {
		return NewValidationError("rate_limit", "buckets", "default", fmt.Errorf("default bucket is required"))
	}
	for name, b := range rl.Buckets {
		if b.Requests < 1 {
			return NewValidationError("rate_limit", name, "requests", fmt.Errorf("must be at least 1"))
		}
		if b.WindowSeconds < 1 {
			return NewValidationError("rate_limit", name, "window_seconds", fmt.Errorf("must be at least 1"))
		}
	}
	if rl.DailySpendCap < 1 {
		return NewValidationError("rate_limit", "spend", "daily_spend_cap", fmt.Errorf("must be at least 1"))
	}
	for op, cost := range map[string]int{
		"text":  rl.Costs.Text,
		"image": rl.Costs.Image,
		"audio": rl.Costs.Audio,
		"video": rl.Costs.Video,
		"batch": rl.Costs.Batch,
		"intel": rl.Costs.Intel,
	} {
		if cost < 1 {
			return NewValidationError("rate_limit", "costs", op, fmt.Errorf("must be at least 1"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateConsensus() error {
	c := v.cfg.Consensus
	if c.ProviderTimeout <= 0 {
		return NewValidationError("consensus", "engine", "provider_timeout", fmt.Errorf("must be positive"))
	}
	if c.InternalWeight <= 0 {
		return NewValidationError("consensus", "internal", "internal_weight", fmt.Errorf("must be positive"))
	}
	for name, p := range c.Providers {
		if p.Weight < 0 {
			return NewValidationError("provider", name, "weight", fmt.Errorf("must not be negative"))
		}
		if p.Endpoint == "" && name != "c2pa" {
			return NewValidationError("provider", name, "endpoint", fmt.Errorf("%w", ErrMissingRequiredField))
		}
	}
	for modality, threshold := range c.Thresholds {
		if threshold < 0 || threshold > 1 {
			return NewValidationError("consensus", modality, "threshold",
				fmt.Errorf("must be in [0,1], got %g", threshold))
		}
	}
	return nil
}

func (v *ConfigValidator) validateScheduler() error {
	s := v.cfg.Scheduler
	if s.TickInterval <= 0 {
		return NewValidationError("scheduler", "loop", "tick_interval", fmt.Errorf("must be positive"))
	}
	if s.MonthlyRequestCap < 0 {
		return NewValidationError("scheduler", "budget", "monthly_request_cap", fmt.Errorf("must not be negative"))
	}
	if s.MaxConcurrentRuns < 1 {
		return NewValidationError("scheduler", "pool", "max_concurrent_runs", fmt.Errorf("must be at least 1"))
	}
	seen := make(map[string]bool, len(s.Jobs))
	for _, j := range s.Jobs {
		if j.Handle == "" {
			return NewValidationError("scheduler", "jobs", "handle", fmt.Errorf("%w", ErrMissingRequiredField))
		}
		if seen[j.Handle] {
			return NewValidationError("scheduler", j.Handle, "handle", fmt.Errorf("duplicate job handle"))
		}
		seen[j.Handle] = true
		if j.Interval <= 0 {
			return NewValidationError("scheduler", j.Handle, "interval", fmt.Errorf("must be positive"))
		}
		if j.WindowDays < 1 {
			return NewValidationError("scheduler", j.Handle, "window_days", fmt.Errorf("must be at least 1"))
		}
		if j.MaxPosts < 1 {
			return NewValidationError("scheduler", j.Handle, "max_posts", fmt.Errorf("must be at least 1"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateWebhook() error {
	w := v.cfg.Webhook
	if w.MaxAttempts < 1 {
		return NewValidationError("webhook", "retry", "max_attempts", fmt.Errorf("must be at least 1"))
	}
	if w.BaseBackoff <= 0 {
		return NewValidationError("webhook", "retry", "base_backoff", fmt.Errorf("must be positive"))
	}
	if w.MaxBackoff < w.BaseBackoff {
		return NewValidationError("webhook", "retry", "max_backoff",
			fmt.Errorf("must be at least base_backoff (%s)", w.BaseBackoff))
	}
	if w.Timeout <= 0 {
		return NewValidationError("webhook", "delivery", "timeout", fmt.Errorf("must be positive"))
	}
	if len(w.URLs) > 0 && w.QueueFile == "" {
		return NewValidationError("webhook", "queue", "queue_file", fmt.Errorf("%w", ErrMissingRequiredField))
	}
	return nil
}
