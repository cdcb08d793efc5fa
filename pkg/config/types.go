package config

import "time"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// AuthConfig holds API-key authentication settings.
type AuthConfig struct {
	RequireAPIKey bool
	APIKeyHeader  string
	APIKeys       []string
}

// LimitsConfig holds input size bounds per modality.
type LimitsConfig struct {
	MinTextLength     int `yaml:"min_text_length"`
	MaxTextLength     int `yaml:"max_text_length"`
	MaxImageSizeMB    int `yaml:"max_image_size_mb"`
	MaxAudioSizeMB    int `yaml:"max_audio_size_mb"`
	MaxVideoSizeMB    int `yaml:"max_video_size_mb"`
	MaxBatchItems     int `yaml:"max_batch_items"`
	MaxURLFetchSizeMB int `yaml:"max_url_fetch_size_mb"`
}

// BucketConfig is one fixed-window rate-limit bucket.
type BucketConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// CostTable maps operation families to spend-ledger points.
type CostTable struct {
	Text  int `yaml:"text"`
	Image int `yaml:"image"`
	Audio int `yaml:"audio"`
	Video int `yaml:"video"`
	Batch int `yaml:"batch"`
	Intel int `yaml:"intel"`
}

// RateLimitConfig holds per-client request buckets and the daily spend cap.
type RateLimitConfig struct {
	Buckets       map[string]BucketConfig `yaml:"buckets"`
	DailySpendCap int                     `yaml:"daily_spend_cap"`
	Costs         CostTable               `yaml:"costs"`
}

// ProviderConfig describes one external detection provider.
type ProviderConfig struct {
	Weight     float64
	Endpoint   string
	APIKeyEnv  string
	Modalities []string
}

// ConsensusConfig controls the provider fan-out and aggregation.
type ConsensusConfig struct {
	Enabled         bool
	ProviderTimeout time.Duration
	InternalWeight  float64
	// RetryAttempts is how many times one probe is tried against a
	// provider before its fault is recorded.
	RetryAttempts int
	Providers     map[string]*ProviderConfig
	Thresholds    map[string]float64
}

// JobConfig is one recurring collection job.
type JobConfig struct {
	Handle     string
	Interval   time.Duration
	WindowDays int
	MaxPosts   int
}

// SchedulerConfig controls the background collection scheduler.
type SchedulerConfig struct {
	Enabled           bool
	TickInterval      time.Duration
	MonthlyRequestCap int
	KillSwitchOnCap   bool
	UsageFile         string
	MaxConcurrentRuns int
	MaxRetryBackoff   time.Duration
	Jobs              []JobConfig
}

// WebhookConfig controls outbound webhook delivery.
type WebhookConfig struct {
	URLs           []string
	SecretEnv      string
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	DrainInterval  time.Duration
	QueueFile      string
	DeadLetterFile string
}

// AuditConfig controls the audit event pipeline.
type AuditConfig struct {
	Enabled         bool
	RingCapacity    int
	LogHTTPRequests bool
}

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// AnalysisRetentionDays is how many days analysis records are kept.
	AnalysisRetentionDays int

	// EventTTLDays is the maximum age of audit event rows before deletion.
	EventTTLDays int

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration
}

// StoreConfig holds analysis store tuning.
type StoreConfig struct {
	DedupWindow  time.Duration
	ExportRowCap int
}

// IntelConfig holds the upstream social-intel API client settings.
type IntelConfig struct {
	APIBaseURL     string
	BearerTokenEnv string
	PageSize       int
	MaxPages       int
	RequestTimeout time.Duration
}
