package config

// Config is the umbrella configuration object returned by Initialize()
// and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Server    *ServerConfig
	Auth      *AuthConfig
	Limits    *LimitsConfig
	RateLimit *RateLimitConfig
	Consensus *ConsensusConfig
	Scheduler *SchedulerConfig
	Webhook   *WebhookConfig
	Audit     *AuditConfig
	Retention *RetentionConfig
	Store     *StoreConfig
	Intel     *IntelConfig

	// CacheURL is the Redis connection URL for shared rate-limit state.
	// Empty means in-process counters.
	CacheURL string
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Providers      int
	RateBuckets    int
	ScheduledJobs  int
	WebhookTargets int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.Consensus != nil {
		s.Providers = len(c.Consensus.Providers)
	}
	if c.RateLimit != nil {
		s.RateBuckets = len(c.RateLimit.Buckets)
	}
	if c.Scheduler != nil {
		s.ScheduledJobs = len(c.Scheduler.Jobs)
	}
	if c.Webhook != nil {
		s.WebhookTargets = len(c.Webhook.URLs)
	}
	return s
}

// Threshold returns the AI-verdict threshold for a modality, falling back
// to 0.5 when the modality has no configured value.
func (c *Config) Threshold(modality string) float64 {
	if c.Consensus != nil {
		if t, ok := c.Consensus.Thresholds[modality]; ok {
			return t
		}
	}
	return 0.5
}

// Bucket returns the rate-limit bucket config for name, falling back to
// the "default" bucket.
func (c *Config) Bucket(name string) BucketConfig {
	if c.RateLimit != nil {
		if b, ok := c.RateLimit.Buckets[name]; ok {
			return b
		}
		if b, ok := c.RateLimit.Buckets["default"]; ok {
			return b
		}
	}
	return BucketConfig{Requests: 120, WindowSeconds: 60}
}
