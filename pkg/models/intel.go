package models

import "time"

// RequestPlan is the upstream-API budget estimate for one collection run.
type RequestPlan struct {
	TargetPages      int `json:"target_pages"`
	MentionPages     int `json:"mention_pages"`
	InteractionPages int `json:"interaction_pages"`
	TotalRequests    int `json:"total_requests"`
}

// IntelReport summarizes one scheduled collection run for a handle.
type IntelReport struct {
	Handle         string    `json:"handle"`
	WindowDays     int       `json:"window_days"`
	PostsCollected int       `json:"posts_collected"`
	PostsFlagged   int       `json:"posts_flagged"`
	FlaggedRate    float64   `json:"flagged_rate"`
	RequestsUsed   int       `json:"requests_used"`
	Alerts         []string  `json:"alerts"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// JobStatus is the scheduler's view of one configured job.
type JobStatus struct {
	Handle        string     `json:"handle"`
	Interval      string     `json:"interval"`
	Running       bool       `json:"running"`
	Failures      int        `json:"failures"`
	LastCompleted *time.Time `json:"last_completed,omitempty"`
	NextEligible  *time.Time `json:"next_eligible,omitempty"`
}

// SchedulerStatus is the operator-facing scheduler snapshot.
type SchedulerStatus struct {
	Enabled         bool        `json:"enabled"`
	MonthKey        string      `json:"month_key"`
	RequestsUsed    int         `json:"requests_used"`
	MonthlyCap      int         `json:"monthly_cap"`
	KillSwitchArmed bool        `json:"kill_switch_armed"`
	Jobs            []JobStatus `json:"jobs"`
}
