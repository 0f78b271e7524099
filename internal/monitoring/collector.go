package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/store"
)

// MetricsSnapshot holds a point-in-time view of publishing health.
type MetricsSnapshot struct {
	// Cycle metrics within the lookback window. Attempted excludes cycles
	// skipped by the posting-hours gate.
	CyclesAttempted     int     `json:"cycles_attempted"`
	CyclesPublished     int     `json:"cycles_published"`
	CyclesNoCandidates  int     `json:"cycles_no_candidates"`
	CyclesVerifyFailed  int     `json:"cycles_verify_failed"`
	CyclesPublishFailed int     `json:"cycles_publish_failed"`
	CyclesSkipped       int     `json:"cycles_skipped"`
	PublishRate         float64 `json:"publish_rate"`
	AvgScore            float64 `json:"avg_score"`

	// Drought tracking.
	ConsecutiveNoPublish  int        `json:"consecutive_no_publish"`
	LastPublishedAt       *time.Time `json:"last_published_at,omitempty"`
	HoursSinceLastPublish float64    `json:"hours_since_last_publish"`

	// Ledger depth.
	LedgerSize int `json:"ledger_size"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the cycle history and the ledger.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of publishing health over the given lookback
// window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Cycles within the window, newest first.
	cycles, err := c.store.ListCycles(ctx, store.CycleFilter{
		Since: cutoff,
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list cycles")
	}

	var totalScore float64
	streakOpen := true
	for _, cyc := range cycles {
		if cyc.Outcome == model.OutcomeSkippedInactive {
			snap.CyclesSkipped++
			continue
		}
		snap.CyclesAttempted++
		switch cyc.Outcome {
		case model.OutcomePublished:
			snap.CyclesPublished++
			totalScore += cyc.Score
			streakOpen = false
		case model.OutcomeNoCandidates:
			snap.CyclesNoCandidates++
		case model.OutcomeVerifyFailed:
			snap.CyclesVerifyFailed++
		case model.OutcomePublishFailed:
			snap.CyclesPublishFailed++
		}
		if streakOpen {
			snap.ConsecutiveNoPublish++
		}
	}
	if snap.CyclesAttempted > 0 {
		snap.PublishRate = float64(snap.CyclesPublished) / float64(snap.CyclesAttempted)
	}
	if snap.CyclesPublished > 0 {
		snap.AvgScore = totalScore / float64(snap.CyclesPublished)
	}

	// Newest ledger entry, regardless of window.
	pubs, err := c.store.ListPublications(ctx, 1)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list publications")
	}
	if len(pubs) > 0 {
		last := pubs[0].PublishedAt
		snap.LastPublishedAt = &last
		snap.HoursSinceLastPublish = now.Sub(last).Hours()
	} else if snap.CyclesAttempted > 0 {
		// Never published but actively trying: the drought is at least as
		// old as the window.
		snap.HoursSinceLastPublish = float64(lookbackHours)
	}

	size, err := c.store.CountPublications(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count publications")
	}
	snap.LedgerSize = size

	return snap, nil
}
