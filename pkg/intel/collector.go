// Package intel collects recent posts for monitored handles from the
// upstream social API, runs them through text detection, and produces
// per-run reports under a predictable request budget.
package intel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

// TextDetector runs one text through the detection pipeline.
type TextDetector func(ctx context.Context, text string) (*models.DetectionResult, error)

// recordStore is the slice of the analysis store the collector needs.
type recordStore interface {
	Put(ctx context.Context, rec *models.AnalysisRecord) (string, error)
}

// webhookEnqueuer queues an outbound event notification.
type webhookEnqueuer interface {
	Enqueue(eventType string, data any) error
}

// Collector runs collection jobs against the upstream API.
type Collector struct {
	cfg    *config.IntelConfig
	api    *apiClient
	detect TextDetector
	store  recordStore
	hooks  webhookEnqueuer
	now    func() time.Time
}

// NewCollector wires a collector over the configured upstream API.
func NewCollector(cfg *config.Config, detect TextDetector, store recordStore, hooks webhookEnqueuer) *Collector {
	return &Collector{
		cfg:    cfg.Intel,
		api:    newAPIClient(cfg.Intel),
		detect: detect,
		store:  store,
		hooks:  hooks,
		now:    time.Now,
	}
}

// EstimatePlan predicts the upstream request cost of a run: one handle
// lookup plus one page group each for posts, mentions, and interactions.
func (c *Collector) EstimatePlan(windowDays, maxPosts, maxPages int) *models.RequestPlan {
	if maxPages <= 0 || maxPages > c.cfg.MaxPages {
		maxPages = c.cfg.MaxPages
	}
	pages := (maxPosts + c.cfg.PageSize - 1) / c.cfg.PageSize
	if pages < 1 {
		pages = 1
	}
	if pages > maxPages {
		pages = maxPages
	}
	plan := &models.RequestPlan{
		TargetPages:      pages,
		MentionPages:     pages,
		InteractionPages: pages,
	}
	plan.TotalRequests = 1 + plan.TargetPages + plan.MentionPages + plan.InteractionPages
	return plan
}

// EstimateJob is the scheduler-facing estimate for a configured job.
func (c *Collector) EstimateJob(job config.JobConfig) int {
	return c.EstimatePlan(job.WindowDays, job.MaxPosts, 0).TotalRequests
}

// Run executes one collection for the job's handle: fetch the handle's
// recent posts plus mention and interaction context, detect each post,
// persist the results, and notify via webhook. The returned count is
// upstream requests actually spent, including on failed runs.
func (c *Collector) Run(ctx context.Context, job config.JobConfig) (*models.IntelReport, int, error) {
	requests := 0
	since := c.now().UTC().AddDate(0, 0, -job.WindowDays)

	userID, err := c.api.lookupUser(ctx, job.Handle)
	requests++
	if err != nil {
		return nil, requests, err
	}

	posts, used, err := c.api.pagedPosts(ctx, fmt.Sprintf("/2/users/%s/tweets", userID),
		since, job.MaxPosts, c.cfg.MaxPages)
	requests += used
	if err != nil {
		return nil, requests, fmt.Errorf("failed to fetch posts for %s: %w", job.Handle, err)
	}

	mentions, used, err := c.api.pagedPosts(ctx, fmt.Sprintf("/2/users/%s/mentions", userID),
		since, job.MaxPosts, c.cfg.MaxPages)
	requests += used
	if err != nil {
		slog.Warn("Mention fetch failed, continuing with posts only",
			"handle", job.Handle, "error", err)
		mentions = nil
	}

	interactions, used, err := c.api.pagedPosts(ctx, fmt.Sprintf("/2/users/%s/liked_tweets", userID),
		since, job.MaxPosts, c.cfg.MaxPages)
	requests += used
	if err != nil {
		slog.Warn("Interaction fetch failed, continuing without them",
			"handle", job.Handle, "error", err)
		interactions = nil
	}

	flagged := 0
	analyzed := 0
	for _, p := range posts {
		if ctx.Err() != nil {
			return nil, requests, ctx.Err()
		}
		result, err := c.detect(ctx, p.Text)
		if err != nil {
			// Posts below the detector's minimum length are expected.
			slog.Debug("Skipping post", "handle", job.Handle, "post_id", p.ID, "error", err)
			continue
		}
		analyzed++
		if result.IsAIGenerated {
			flagged++
		}
		if err := c.persist(ctx, job.Handle, p, result); err != nil {
			slog.Warn("Failed to persist collected post",
				"handle", job.Handle, "post_id", p.ID, "error", err)
		}
	}

	report := &models.IntelReport{
		Handle:         job.Handle,
		WindowDays:     job.WindowDays,
		PostsCollected: len(posts),
		PostsFlagged:   flagged,
		RequestsUsed:   requests,
		GeneratedAt:    c.now().UTC(),
	}
	if analyzed > 0 {
		report.FlaggedRate = round3(float64(flagged) / float64(analyzed))
	}
	report.Alerts = buildAlerts(report, len(mentions), len(interactions))

	if err := c.hooks.Enqueue("intel.report", report); err != nil {
		slog.Warn("Failed to enqueue intel report webhook",
			"handle", job.Handle, "error", err)
	}
	slog.Info("Collection run report",
		"handle", job.Handle, "posts", report.PostsCollected,
		"flagged", report.PostsFlagged, "flagged_rate", report.FlaggedRate,
		"requests_used", requests)
	return report, requests, nil
}

func (c *Collector) persist(ctx context.Context, handle string, p post, result *models.DetectionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result payload: %w", err)
	}
	hash := sha256.Sum256([]byte(p.Text))
	sourceURL := fmt.Sprintf("https://x.com/%s/status/%s", handle, p.ID)
	_, err = c.store.Put(ctx, &models.AnalysisRecord{
		ContentType:     models.ContentTypeText,
		ContentHash:     hex.EncodeToString(hash[:]),
		IsAIGenerated:   result.IsAIGenerated,
		Confidence:      result.Confidence,
		ModelPrediction: result.ModelPrediction,
		ResultPayload:   payload,
		Source:          "scheduled",
		SourceURL:       &sourceURL,
		InputSize:       int64(len(p.Text)),
	})
	return err
}

// buildAlerts derives operator alerts from one run's numbers.
func buildAlerts(report *models.IntelReport, mentions, interactions int) []string {
	var alerts []string
	if report.PostsCollected == 0 {
		alerts = append(alerts, "no_recent_posts")
	}
	if report.PostsCollected >= 10 && report.FlaggedRate >= 0.5 {
		alerts = append(alerts, "high_ai_share")
	}
	if mentions > report.PostsCollected*10 && mentions >= 50 {
		alerts = append(alerts, "mention_surge")
	}
	if interactions > report.PostsCollected*10 && interactions >= 50 {
		alerts = append(alerts, "interaction_surge")
	}
	return alerts
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
