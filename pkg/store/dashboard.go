package store

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DashboardSummary aggregates the whole window.
type DashboardSummary struct {
	TotalAnalyses       int     `json:"total_analyses"`
	AICount             int     `json:"ai_count"`
	HumanDetectedWindow int     `json:"human_detected_window"`
	AIRate              float64 `json:"ai_rate"`
	AvgConfidence       float64 `json:"avg_confidence"`
}

// TimelinePoint is one zero-filled UTC day in the dashboard timeline.
type TimelinePoint struct {
	Date          string  `json:"date"`
	Count         int     `json:"count"`
	AICount       int     `json:"ai_count"`
	HumanDetected int     `json:"human_detected"`
	AIRate        float64 `json:"ai_rate"`
}

// ModelCount is one entry in the top-models list.
type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

// Alert is one fired dashboard alert rule.
type Alert struct {
	Rule     string  `json:"rule"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value"`
}

// Dashboard is the aggregated analytics view.
type Dashboard struct {
	WindowDays int               `json:"window_days"`
	Summary    DashboardSummary  `json:"summary"`
	ByType     map[string]int    `json:"by_type"`
	BySource   map[string]int    `json:"by_source"`
	Timeline   []TimelinePoint   `json:"timeline"`
	TopModels  []ModelCount      `json:"top_models"`
	Alerts     []Alert           `json:"alerts"`
}

type dailyRow struct {
	Day     time.Time `db:"day"`
	Count   int       `db:"count"`
	AICount int       `db:"ai_count"`
}

// alertBaselineDays is the trailing window the alert rules compare against.
const alertBaselineDays = 14

// Dashboard builds the analytics view for the trailing windowDays window.
// Days are UTC calendar days and the timeline is zero-filled.
func (s *AnalysisStore) Dashboard(ctx context.Context, windowDays int) (*Dashboard, error) {
	if windowDays < 1 {
		windowDays = 7
	}
	now := time.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	windowStart := today.AddDate(0, 0, -(windowDays - 1))

	d := &Dashboard{
		WindowDays: windowDays,
		ByType:     map[string]int{},
		BySource:   map[string]int{},
		TopModels:  []ModelCount{},
		Alerts:     []Alert{},
	}

	// Summary.
	var summary struct {
		Total         int      `db:"total"`
		AICount       int      `db:"ai_count"`
		AvgConfidence *float64 `db:"avg_confidence"`
	}
	err := s.db.GetContext(ctx, &summary,
		`SELECT COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE is_ai_generated) AS ai_count,
		        AVG(confidence) AS avg_confidence
		 FROM analysis_records WHERE created_at >= $1`, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dashboard summary: %w", err)
	}
	d.Summary = DashboardSummary{
		TotalAnalyses:       summary.Total,
		AICount:             summary.AICount,
		HumanDetectedWindow: summary.Total - summary.AICount,
	}
	if summary.Total > 0 {
		d.Summary.AIRate = float64(summary.AICount) / float64(summary.Total)
	}
	if summary.AvgConfidence != nil {
		d.Summary.AvgConfidence = *summary.AvgConfidence
	}

	// Per-type and per-source breakdowns.
	if err := s.groupCounts(ctx, "content_type", windowStart, d.ByType); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, "source", windowStart, d.BySource); err != nil {
		return nil, err
	}

	// Daily series covers the longer of the display window and the alert
	// baseline so the alert rules see their full trailing window.
	seriesDays := windowDays
	if alertBaselineDays+1 > seriesDays {
		seriesDays = alertBaselineDays + 1
	}
	seriesStart := today.AddDate(0, 0, -(seriesDays - 1))
	daily, err := s.dailySeries(ctx, seriesStart, today)
	if err != nil {
		return nil, err
	}

	// Zero-filled timeline for the display window.
	for day := windowStart; !day.After(today); day = day.AddDate(0, 0, 1) {
		p := TimelinePoint{Date: day.Format("2006-01-02")}
		if row, ok := daily[p.Date]; ok {
			p.Count = row.Count
			p.AICount = row.AICount
			p.HumanDetected = row.Count - row.AICount
			if row.Count > 0 {
				p.AIRate = float64(row.AICount) / float64(row.Count)
			}
		}
		d.Timeline = append(d.Timeline, p)
	}

	// Top models by count desc, name asc.
	rows := []struct {
		Model string `db:"model"`
		Count int    `db:"count"`
	}{}
	err = s.db.SelectContext(ctx, &rows,
		`SELECT model_prediction AS model, COUNT(*) AS count
		 FROM analysis_records
		 WHERE created_at >= $1 AND model_prediction IS NOT NULL
		 GROUP BY model_prediction
		 ORDER BY count DESC, model ASC
		 LIMIT 5`, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top models: %w", err)
	}
	for _, r := range rows {
		d.TopModels = append(d.TopModels, ModelCount{Model: r.Model, Count: r.Count})
	}

	d.Alerts = evaluateAlerts(daily, today)

	return d, nil
}

func (s *AnalysisStore) groupCounts(ctx context.Context, column string, since time.Time, out map[string]int) error {
	// column is a fixed identifier chosen by the caller, never user input.
	rows := []struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}{}
	query := fmt.Sprintf(
		`SELECT %s AS key, COUNT(*) AS count FROM analysis_records
		 WHERE created_at >= $1 GROUP BY %s`, column, column)
	if err := s.db.SelectContext(ctx, &rows, query, since); err != nil {
		return fmt.Errorf("failed to aggregate by %s: %w", column, err)
	}
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return nil
}

// dailySeries returns per-UTC-day counts keyed by "2006-01-02".
func (s *AnalysisStore) dailySeries(ctx context.Context, from, to time.Time) (map[string]dailyRow, error) {
	rows := []dailyRow{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
		        COUNT(*) AS count,
		        COUNT(*) FILTER (WHERE is_ai_generated) AS ai_count
		 FROM analysis_records
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY day`, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily series: %w", err)
	}
	out := make(map[string]dailyRow, len(rows))
	for _, r := range rows {
		out[r.Day.UTC().Format("2006-01-02")] = r
	}
	return out, nil
}

// evaluateAlerts applies the dashboard alert rules to the daily series.
//
// ai_rate_spike fires when today's AI rate is more than double the trailing
// 14-day average rate, with at least 20 samples in the trailing window.
// volume_drop fires when today's volume is below 20% of the trailing 14-day
// daily median, with a trailing baseline of at least 50 records.
func evaluateAlerts(daily map[string]dailyRow, today time.Time) []Alert {
	alerts := []Alert{}

	var trailingTotal, trailingAI int
	var trailingCounts []int
	for i := 1; i <= alertBaselineDays; i++ {
		key := today.AddDate(0, 0, -i).Format("2006-01-02")
		row := daily[key]
		trailingTotal += row.Count
		trailingAI += row.AICount
		trailingCounts = append(trailingCounts, row.Count)
	}

	todayRow := daily[today.Format("2006-01-02")]

	if trailingTotal >= 20 && todayRow.Count > 0 {
		baselineRate := float64(trailingAI) / float64(trailingTotal)
		todayRate := float64(todayRow.AICount) / float64(todayRow.Count)
		if baselineRate > 0 && todayRate > 2*baselineRate {
			alerts = append(alerts, Alert{
				Rule:     "ai_rate_spike",
				Severity: "warning",
				Message: fmt.Sprintf("AI detection rate %.0f%% is more than double the trailing average %.0f%%",
					todayRate*100, baselineRate*100),
				Value: todayRate,
			})
		}
	}

	if trailingTotal >= 50 {
		sort.Ints(trailingCounts)
		median := float64(trailingCounts[len(trailingCounts)/2])
		if median > 0 && float64(todayRow.Count) < 0.2*median {
			alerts = append(alerts, Alert{
				Rule:     "volume_drop",
				Severity: "warning",
				Message: fmt.Sprintf("analysis volume %d is below 20%% of the trailing daily median %.0f",
					todayRow.Count, median),
				Value: float64(todayRow.Count),
			})
		}
	}

	return alerts
}
