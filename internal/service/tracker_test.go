package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revloop/overseer/internal/adapter/ristretto"
	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/domain/tracking"
)

func testRegistry() *AlertRegistry {
	return NewAlertRegistry(100, time.Hour, nil, nil, nil)
}

func testTracker(alerts *AlertRegistry, dedup *ristretto.Dedup) *Tracker {
	return NewTracker(config.Defaults().Tracker, newMockStore(), alerts, dedup)
}

func alertsForBreach(alerts *AlertRegistry, breach string) int {
	n := 0
	for _, a := range alerts.List() {
		if a.Component == "tracker" && a.Metadata["breach"] == breach {
			n++
		}
	}
	return n
}

func TestTrackRequiresID(t *testing.T) {
	tr := testTracker(testRegistry(), nil)
	if err := tr.Track(tracking.Entity{Kind: tracking.KindTask}); err == nil {
		t.Error("expected error for entity without ID")
	}
}

func TestUntrackUnknown(t *testing.T) {
	tr := testTracker(testRegistry(), nil)
	if err := tr.Untrack("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Untrack = %v, want ErrNotFound", err)
	}
}

func TestSnapshotTimeOverrun(t *testing.T) {
	alerts := testRegistry()
	tr := testTracker(alerts, nil)

	start := time.Now().UTC().Add(-90 * time.Minute)
	tr.Track(tracking.Entity{
		ID: "t1", Kind: tracking.KindTask, Name: "slow task",
		StartedAt: start, EstimatedMinutes: 60,
	})

	// 90 elapsed vs 60 estimated = 50% overrun, past the 25% threshold.
	tr.SnapshotAll(context.Background(), time.Now().UTC())

	if got := alertsForBreach(alerts, breachTimeOverrun); got != 1 {
		t.Errorf("time overrun alerts = %d, want 1", got)
	}
}

func TestSnapshotWithinEstimateIsQuiet(t *testing.T) {
	alerts := testRegistry()
	tr := testTracker(alerts, nil)

	tr.Track(tracking.Entity{
		ID: "t1", Kind: tracking.KindTask, Name: "on track",
		StartedAt: time.Now().UTC().Add(-30 * time.Minute), EstimatedMinutes: 60,
	})
	tr.SnapshotAll(context.Background(), time.Now().UTC())

	if got := len(alerts.List()); got != 0 {
		t.Errorf("alerts = %d, want 0", got)
	}
}

func TestSnapshotQualityAndRiskBreaches(t *testing.T) {
	alerts := testRegistry()
	tr := testTracker(alerts, nil)

	tr.Track(tracking.Entity{
		ID: "d1", Kind: tracking.KindDecision, Name: "risky call",
		StartedAt: time.Now().UTC(),
		Quality:   2.0, // below 3.0 -> error
		Risk:      0.9, // above 0.7 -> warning
	})
	tr.SnapshotAll(context.Background(), time.Now().UTC())

	if got := alertsForBreach(alerts, breachQualityLow); got != 1 {
		t.Errorf("quality alerts = %d, want 1", got)
	}
	if got := alertsForBreach(alerts, breachRiskHigh); got != 1 {
		t.Errorf("risk alerts = %d, want 1", got)
	}
	for _, a := range alerts.List() {
		if a.Metadata["breach"] == breachQualityLow && a.Level != alert.LevelError {
			t.Errorf("quality breach level = %s, want error", a.Level)
		}
	}
}

func TestUnreportedMetricsNotJudged(t *testing.T) {
	alerts := testRegistry()
	tr := testTracker(alerts, nil)

	// Quality and satisfaction at zero mean "not reported", never a breach.
	tr.Track(tracking.Entity{ID: "t1", Kind: tracking.KindTask, StartedAt: time.Now().UTC()})
	tr.SnapshotAll(context.Background(), time.Now().UTC())

	if got := len(alerts.List()); got != 0 {
		t.Errorf("alerts = %d, want 0 for unreported metrics", got)
	}
}

func TestUpdateMergesReadings(t *testing.T) {
	alerts := testRegistry()
	tr := testTracker(alerts, nil)

	tr.Track(tracking.Entity{ID: "t1", Kind: tracking.KindTask, StartedAt: time.Now().UTC()})
	if err := tr.Update("t1", tracking.Reading{Satisfaction: 0.4}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	tr.SnapshotAll(context.Background(), time.Now().UTC())

	if got := alertsForBreach(alerts, breachSatisfaction); got != 1 {
		t.Errorf("satisfaction alerts = %d, want 1", got)
	}
}

func TestBreachDedupWithinCycle(t *testing.T) {
	dedup, err := ristretto.NewDedup(1 << 20)
	if err != nil {
		t.Fatalf("NewDedup: %v", err)
	}
	defer dedup.Close()

	alerts := testRegistry()
	tr := testTracker(alerts, dedup)

	tr.Track(tracking.Entity{
		ID: "t1", Kind: tracking.KindTask, Name: "hot",
		StartedAt: time.Now().UTC(), Risk: 0.95,
	})

	now := time.Now().UTC()
	tr.SnapshotAll(context.Background(), now)
	tr.SnapshotAll(context.Background(), now.Add(time.Second))

	if got := alertsForBreach(alerts, breachRiskHigh); got != 1 {
		t.Errorf("risk alerts = %d, want 1 (deduplicated)", got)
	}
}

func TestUntrackClearsDedup(t *testing.T) {
	dedup, err := ristretto.NewDedup(1 << 20)
	if err != nil {
		t.Fatalf("NewDedup: %v", err)
	}
	defer dedup.Close()

	alerts := testRegistry()
	tr := testTracker(alerts, dedup)

	e := tracking.Entity{ID: "t1", Kind: tracking.KindTask, StartedAt: time.Now().UTC(), Risk: 0.95}
	tr.Track(e)
	tr.SnapshotAll(context.Background(), time.Now().UTC())
	if err := tr.Untrack("t1"); err != nil {
		t.Fatalf("Untrack: %v", err)
	}

	// Re-tracking starts fresh: the same breach alerts again.
	tr.Track(e)
	tr.SnapshotAll(context.Background(), time.Now().UTC())

	if got := alertsForBreach(alerts, breachRiskHigh); got != 2 {
		t.Errorf("risk alerts = %d, want 2 after re-track", got)
	}
}
