package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provenance-labs/provd/pkg/config"
)

type fakePruner struct {
	cutoffs []time.Time
	count   int64
	err     error
}

func (f *fakePruner) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.count, f.err
}

func (f *fakePruner) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.Prune(ctx, cutoff)
}

func testService(records, events *fakePruner) *Service {
	cfg := &config.RetentionConfig{
		AnalysisRetentionDays: 90,
		EventTTLDays:          30,
		CleanupInterval:       time.Hour,
	}
	svc := NewService(cfg, records, events)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestService_PrunesWithRetentionCutoffs(t *testing.T) {
	records := &fakePruner{count: 3}
	events := &fakePruner{count: 12}
	svc := testService(records, events)

	svc.runAll(context.Background())

	require.Len(t, records.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 5, 26, 10, 0, 0, 0, time.UTC), records.cutoffs[0],
		"analysis cutoff is 90 days back")

	require.Len(t, events.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 7, 25, 10, 0, 0, 0, time.UTC), events.cutoffs[0],
		"event cutoff is 30 days back")
}

func TestService_RecordPruneFailureStillPrunesEvents(t *testing.T) {
	records := &fakePruner{err: errors.New("db down")}
	events := &fakePruner{}
	svc := testService(records, events)

	svc.runAll(context.Background())

	assert.Len(t, records.cutoffs, 1)
	assert.Len(t, events.cutoffs, 1, "event prune runs even when record prune fails")
}

func TestService_ZeroRetentionDisablesPrune(t *testing.T) {
	records := &fakePruner{}
	events := &fakePruner{}
	svc := testService(records, events)
	svc.config.AnalysisRetentionDays = 0
	svc.config.EventTTLDays = 0

	svc.runAll(context.Background())

	assert.Empty(t, records.cutoffs)
	assert.Empty(t, events.cutoffs)
}

func TestService_StartStop(t *testing.T) {
	records := &fakePruner{}
	events := &fakePruner{}
	svc := testService(records, events)
	svc.config.CleanupInterval = time.Hour

	svc.Start(context.Background())
	svc.Stop()

	assert.Len(t, records.cutoffs, 1, "one immediate pass before the first tick")
	assert.Len(t, events.cutoffs, 1)
}

func TestService_StopWithoutStartIsNoop(t *testing.T) {
	svc := testService(&fakePruner{}, &fakePruner{})
	svc.Stop()
}
