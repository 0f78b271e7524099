//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dealcast/dealcast/internal/model"
)

func sampleCycles() []model.CycleRecord {
	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return []model.CycleRecord{
		{
			ID:         "11111111-2222-3333-4444-555555555555",
			ChannelKey: "tech",
			SourceMode: model.ModeFlash,
			Outcome:    model.OutcomePublished,
			ProductID:  "B0TEST1234",
			Title:      "Cuffie Bluetooth",
			Score:      160.5,
			Sourced:    12,
			Valid:      5,
			Eligible:   4,
			StartedAt:  started,
			FinishedAt: started.Add(1500 * time.Millisecond),
		},
		{
			ID:         "66666666-7777-8888-9999-000000000000",
			ChannelKey: "moda",
			SourceMode: model.ModeBrowse,
			Outcome:    model.OutcomeNoCandidates,
			StartedAt:  started.Add(20 * time.Minute),
			FinishedAt: started.Add(20*time.Minute + 800*time.Millisecond),
		},
		{
			ID:         "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			Outcome:    model.OutcomeSkippedInactive,
			StartedAt:  started.Add(40 * time.Minute),
			FinishedAt: started.Add(40 * time.Minute),
		},
	}
}

func TestComputeCycleStats(t *testing.T) {
	recs := sampleCycles()
	recs = append(recs, model.CycleRecord{
		ChannelKey: "tech",
		Outcome:    model.OutcomePublished,
		Score:      139.5,
		StartedAt:  recs[0].StartedAt,
		FinishedAt: recs[0].StartedAt.Add(500 * time.Millisecond),
	})

	s := computeCycleStats(recs)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Published)
	assert.Equal(t, 1, s.NoCandidates)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 0, s.VerifyFailed)
	assert.Equal(t, 0, s.PublishFailed)
	assert.InDelta(t, 150.0, s.AvgScore, 0.001)
	// 1500ms + 800ms + 500ms across the three non-skipped cycles.
	assert.InDelta(t, 2.8/3, s.AvgDurSecs, 0.001)
}

func TestComputeCycleStats_Empty(t *testing.T) {
	s := computeCycleStats(nil)

	assert.Equal(t, 0, s.Total)
	assert.Zero(t, s.AvgScore)
	assert.Zero(t, s.AvgDurSecs)
}

func TestFormatCyclesList(t *testing.T) {
	var buf bytes.Buffer
	formatCyclesList(&buf, sampleCycles())

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "11111111")
	assert.NotContains(t, out, "11111111-2222")
	assert.Contains(t, out, "tech")
	assert.Contains(t, out, "published")
	assert.Contains(t, out, "160.5")
	assert.Contains(t, out, "skipped_inactive")
}

func TestFormatCycleStats(t *testing.T) {
	var buf bytes.Buffer
	formatCycleStats(&buf, computeCycleStats(sampleCycles()))

	out := buf.String()
	assert.Contains(t, out, "Total cycles:")
	assert.Contains(t, out, "Published:")
	assert.Contains(t, out, "Avg winning score:")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("12345678-abcd-efgh"))
	assert.Equal(t, "short", truncateID("short"))
}
