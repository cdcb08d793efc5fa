package config

import "time"

// DefaultServerConfig returns the built-in HTTP server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultAuthConfig returns the built-in auth defaults. API keys are off
// by default; deployments opt in by setting require_api_key with a key list.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		RequireAPIKey: false,
		APIKeyHeader:  "X-API-Key",
	}
}

// DefaultLimitsConfig returns the built-in input size bounds.
func DefaultLimitsConfig() *LimitsConfig {
	return &LimitsConfig{
		MinTextLength:     50,
		MaxTextLength:     50000,
		MaxImageSizeMB:    10,
		MaxAudioSizeMB:    25,
		MaxVideoSizeMB:    150,
		MaxBatchItems:     50,
		MaxURLFetchSizeMB: 20,
	}
}

// DefaultRateLimitConfig returns the built-in buckets, costs, and spend cap.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Buckets: map[string]BucketConfig{
			"default": {Requests: 120, WindowSeconds: 60},
			"text":    {Requests: 100, WindowSeconds: 60},
			"media":   {Requests: 40, WindowSeconds: 60},
			"batch":   {Requests: 20, WindowSeconds: 60},
			"intel":   {Requests: 20, WindowSeconds: 60},
		},
		DailySpendCap: 1000,
		Costs: CostTable{
			Text:  1,
			Image: 3,
			Audio: 4,
			Video: 6,
			Batch: 5,
			Intel: 8,
		},
	}
}

// DefaultConsensusConfig returns consensus defaults: internal detector only,
// 0.5 thresholds for every modality.
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		Enabled:         true,
		ProviderTimeout: 8 * time.Second,
		InternalWeight:  1.0,
		RetryAttempts:   3,
		Providers:       map[string]*ProviderConfig{},
		Thresholds: map[string]float64{
			"text":  0.5,
			"image": 0.5,
			"audio": 0.5,
			"video": 0.5,
		},
	}
}

// DefaultSchedulerConfig returns scheduler defaults (disabled until jobs
// are configured).
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Enabled:           false,
		TickInterval:      30 * time.Second,
		MonthlyRequestCap: 10000,
		KillSwitchOnCap:   true,
		UsageFile:         "data/scheduler_usage.json",
		MaxConcurrentRuns: 2,
		MaxRetryBackoff:   1 * time.Hour,
	}
}

// DefaultWebhookConfig returns webhook delivery defaults.
func DefaultWebhookConfig() *WebhookConfig {
	return &WebhookConfig{
		SecretEnv:      "WEBHOOK_SECRET",
		MaxAttempts:    5,
		BaseBackoff:    2 * time.Second,
		MaxBackoff:     5 * time.Minute,
		Timeout:        10 * time.Second,
		DrainInterval:  5 * time.Second,
		QueueFile:      "data/webhook_queue.json",
		DeadLetterFile: "data/webhook_dead_letter.jsonl",
	}
}

// DefaultAuditConfig returns audit pipeline defaults.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:         true,
		RingCapacity:    20000,
		LogHTTPRequests: true,
	}
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		AnalysisRetentionDays: 90,
		EventTTLDays:          30,
		CleanupInterval:       12 * time.Hour,
	}
}

// DefaultStoreConfig returns analysis store defaults.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		DedupWindow:  10 * time.Minute,
		ExportRowCap: 10000,
	}
}

// DefaultIntelConfig returns upstream intel API client defaults.
func DefaultIntelConfig() *IntelConfig {
	return &IntelConfig{
		APIBaseURL:     "https://api.x.com/2",
		BearerTokenEnv: "X_BEARER_TOKEN",
		PageSize:       100,
		MaxPages:       5,
		RequestTimeout: 15 * time.Second,
	}
}
