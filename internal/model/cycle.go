package model

import "time"

// Outcome classifies how a publication cycle ended. Every cycle ends in
// exactly one outcome; none of them is an error condition for the loop.
type Outcome string

const (
	OutcomePublished       Outcome = "published"
	OutcomeNoCandidates    Outcome = "no_candidates"
	OutcomeSkippedInactive Outcome = "skipped_inactive"
	OutcomeVerifyFailed    Outcome = "verify_failed"
	OutcomePublishFailed   Outcome = "publish_failed"
)

// CycleState is the small rotation state threaded through consecutive
// cycles: which channel posts next and which feed the alternate strategy
// uses next. It is passed in and returned explicitly, persisted by the
// caller, never held in package state. Losing it costs fairness only.
type CycleState struct {
	ChannelIndex int  `json:"channel_index"`
	ModeFlip     bool `json:"mode_flip"`
}

// PhaseStatus represents the state of one pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusEmpty    PhaseStatus = "empty"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of one pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CycleRecord is the durable trace of one attempted cycle: what was
// sourced, what survived each stage, and what (if anything) was published.
type CycleRecord struct {
	ID             string        `json:"id"`
	ChannelKey     string        `json:"channel_key"`
	SourceMode     SourceMode    `json:"source_mode"`
	Outcome        Outcome       `json:"outcome"`
	ProductID      string        `json:"product_id,omitempty"`
	Title          string        `json:"title,omitempty"`
	Score          float64       `json:"score,omitempty"`
	Sourced        int           `json:"sourced"`
	Valid          int           `json:"valid"`
	Eligible       int           `json:"eligible"`
	ResetPerformed bool          `json:"reset_performed"`
	Phases         []PhaseResult `json:"phases,omitempty"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Duration returns the wall time the cycle took.
func (r *CycleRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Publication is one ledger entry: the last time a product was announced
// and on which channel. Overwritten in place on every republish.
type Publication struct {
	ProductID   string    `json:"product_id"`
	ChannelKey  string    `json:"channel_key"`
	PublishedAt time.Time `json:"published_at"`
}
