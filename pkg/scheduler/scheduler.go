// Package scheduler runs the recurring collection jobs under a persistent
// monthly request budget with a kill switch that survives restarts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

var (
	// ErrDisabled is returned when the scheduler is not enabled.
	ErrDisabled = errors.New("scheduler is disabled")
	// ErrUnknownJob is returned for a trigger on an unconfigured handle.
	ErrUnknownJob = errors.New("unknown job handle")
	// ErrJobRunning is returned when the job is already in flight.
	ErrJobRunning = errors.New("job is already running")
	// ErrBudgetExhausted is returned when the monthly cap blocks a run.
	ErrBudgetExhausted = errors.New("monthly request budget exhausted")
)

// RunFunc executes one collection run and reports the number of upstream
// API requests it consumed.
type RunFunc func(ctx context.Context, job config.JobConfig) (int, error)

// EstimateFunc predicts the request cost of a run before it starts.
type EstimateFunc func(job config.JobConfig) int

// auditEmitter is the slice of the audit service the scheduler needs.
type auditEmitter interface {
	EmitSchedulerRun(handle string, requestsUsed int, runErr error)
	EmitSchedulerCapped(monthKey string, requestsUsed, cap int)
	EmitSchedulerBudgetSkip(handle string, estimated, requestsUsed, cap int)
}

type jobState struct {
	failures      int
	running       bool
	lastCompleted time.Time
	nextEligible  time.Time
}

// Scheduler ticks through the configured jobs, launching runs that fit
// the remaining monthly budget.
type Scheduler struct {
	cfg      *config.SchedulerConfig
	run      RunFunc
	estimate EstimateFunc
	audit    auditEmitter

	mu    sync.Mutex
	usage usageState
	jobs  map[string]*jobState
	sem   chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a scheduler and recovers the persisted monthly usage.
func New(cfg *config.Config, run RunFunc, estimate EstimateFunc, audit auditEmitter) (*Scheduler, error) {
	usage, err := loadUsage(cfg.Scheduler.UsageFile)
	if err != nil {
		return nil, err
	}
	jobs := make(map[string]*jobState, len(cfg.Scheduler.Jobs))
	for _, job := range cfg.Scheduler.Jobs {
		jobs[job.Handle] = &jobState{}
	}
	s := &Scheduler{
		cfg:      cfg.Scheduler,
		run:      run,
		estimate: estimate,
		audit:    audit,
		usage:    usage,
		jobs:     jobs,
		sem:      make(chan struct{}, max(cfg.Scheduler.MaxConcurrentRuns, 1)),
		now:      time.Now,
	}
	if usage.KillSwitchArmed {
		slog.Warn("Scheduler kill switch is armed from a previous run",
			"month_key", usage.MonthKey, "requests_used", usage.RequestsUsed)
	}
	return s, nil
}

// Start launches the tick loop. In-flight runs finish before Stop returns.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		slog.Info("Scheduler disabled, not starting")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("Scheduler started",
			"jobs", len(s.cfg.Jobs), "tick_interval", s.cfg.TickInterval,
			"monthly_cap", s.cfg.MonthlyRequestCap)
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()
}

// Stop cancels the tick loop and waits for in-flight runs to complete.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// tick evaluates every job once and launches those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.rollMonthLocked()
	if s.usage.KillSwitchArmed && s.cfg.KillSwitchOnCap {
		monthKey, used := s.usage.MonthKey, s.usage.RequestsUsed
		s.mu.Unlock()
		// One capped event per tick keeps the condition visible until the
		// month rolls over.
		s.audit.EmitSchedulerCapped(monthKey, used, s.cfg.MonthlyRequestCap)
		return
	}

	var due []config.JobConfig
	now := s.now().UTC()
	for _, job := range s.cfg.Jobs {
		st := s.jobs[job.Handle]
		if st.running {
			continue
		}
		if !st.lastCompleted.IsZero() && now.Sub(st.lastCompleted) < job.Interval {
			continue
		}
		if now.Before(st.nextEligible) {
			continue
		}
		if !s.reserveBudgetLocked(job) {
			continue
		}
		st.running = true
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.wg.Add(1)
		go func(job config.JobConfig) {
			defer s.wg.Done()
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
			s.execute(ctx, job)
		}(job)
	}
}

// reserveBudgetLocked checks the run's estimated cost against the monthly
// cap, arming the kill switch when the budget is gone.
func (s *Scheduler) reserveBudgetLocked(job config.JobConfig) bool {
	est := s.estimate(job)
	if s.usage.RequestsUsed+est <= s.cfg.MonthlyRequestCap {
		return true
	}
	slog.Warn("Run would exceed monthly request cap, skipping",
		"handle", job.Handle, "estimated", est,
		"requests_used", s.usage.RequestsUsed, "monthly_cap", s.cfg.MonthlyRequestCap)
	s.audit.EmitSchedulerBudgetSkip(job.Handle, est, s.usage.RequestsUsed, s.cfg.MonthlyRequestCap)
	if s.cfg.KillSwitchOnCap && !s.usage.KillSwitchArmed {
		s.usage.KillSwitchArmed = true
		s.persistLocked()
		s.audit.EmitSchedulerCapped(s.usage.MonthKey, s.usage.RequestsUsed, s.cfg.MonthlyRequestCap)
		slog.Error("Scheduler kill switch armed, no further runs this month",
			"month_key", s.usage.MonthKey)
	}
	return false
}

func (s *Scheduler) execute(ctx context.Context, job config.JobConfig) {
	slog.Info("Collection run starting", "handle", job.Handle)
	used, err := s.run(ctx, job)

	s.mu.Lock()
	st := s.jobs[job.Handle]
	st.running = false
	s.usage.RequestsUsed += used
	now := s.now().UTC()
	if err != nil {
		st.failures++
		backoff := s.retryBackoff(st.failures)
		st.nextEligible = now.Add(backoff)
		slog.Error("Collection run failed",
			"handle", job.Handle, "failures", st.failures,
			"next_eligible", st.nextEligible, "error", err)
	} else {
		st.failures = 0
		st.nextEligible = time.Time{}
		st.lastCompleted = now
		slog.Info("Collection run completed",
			"handle", job.Handle, "requests_used", used,
			"month_total", s.usage.RequestsUsed)
	}
	s.persistLocked()
	s.mu.Unlock()

	s.audit.EmitSchedulerRun(job.Handle, used, err)
}

// retryBackoff doubles per consecutive failure, capped by configuration.
func (s *Scheduler) retryBackoff(failures int) time.Duration {
	backoff := s.cfg.TickInterval
	for i := 1; i < failures && backoff < s.cfg.MaxRetryBackoff; i++ {
		backoff *= 2
	}
	if backoff > s.cfg.MaxRetryBackoff {
		backoff = s.cfg.MaxRetryBackoff
	}
	return backoff
}

// rollMonthLocked resets the budget and kill switch on a new UTC month.
func (s *Scheduler) rollMonthLocked() {
	key := s.now().UTC().Format("2006-01")
	if s.usage.MonthKey == key {
		return
	}
	if s.usage.MonthKey != "" {
		slog.Info("Monthly request budget reset",
			"previous_month", s.usage.MonthKey, "requests_used", s.usage.RequestsUsed)
	}
	s.usage = usageState{MonthKey: key}
	s.persistLocked()
}

// TriggerOnce runs one job immediately, bypassing its interval but not
// the monthly budget. It blocks until the run finishes.
func (s *Scheduler) TriggerOnce(ctx context.Context, handle string) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	var job config.JobConfig
	found := false
	for _, j := range s.cfg.Jobs {
		if j.Handle == handle {
			job = j
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownJob, handle)
	}

	s.mu.Lock()
	s.rollMonthLocked()
	st := s.jobs[handle]
	if st.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, handle)
	}
	if !s.reserveBudgetLocked(job) {
		s.mu.Unlock()
		return ErrBudgetExhausted
	}
	st.running = true
	s.mu.Unlock()

	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	s.execute(ctx, job)
	return nil
}

// Status snapshots the budget and per-job state for the API.
func (s *Scheduler) Status() *models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollMonthLocked()

	status := &models.SchedulerStatus{
		Enabled:         s.cfg.Enabled,
		MonthKey:        s.usage.MonthKey,
		RequestsUsed:    s.usage.RequestsUsed,
		MonthlyCap:      s.cfg.MonthlyRequestCap,
		KillSwitchArmed: s.usage.KillSwitchArmed,
		Jobs:            make([]models.JobStatus, 0, len(s.cfg.Jobs)),
	}
	for _, job := range s.cfg.Jobs {
		st := s.jobs[job.Handle]
		js := models.JobStatus{
			Handle:   job.Handle,
			Interval: job.Interval.String(),
			Running:  st.running,
			Failures: st.failures,
		}
		if !st.lastCompleted.IsZero() {
			t := st.lastCompleted
			js.LastCompleted = &t
		}
		if !st.nextEligible.IsZero() {
			t := st.nextEligible
			js.NextEligible = &t
		}
		status.Jobs = append(status.Jobs, js)
	}
	return status
}

func (s *Scheduler) persistLocked() {
	if err := saveUsage(s.cfg.UsageFile, s.usage); err != nil {
		slog.Error("Failed to persist scheduler usage", "error", err)
	}
}
