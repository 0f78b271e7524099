package store

import (
	"context"
	"time"

	"github.com/dealcast/dealcast/internal/model"
)

// CycleFilter specifies criteria for listing cycle records.
type CycleFilter struct {
	ChannelKey string        `json:"channel_key,omitempty"`
	Outcome    model.Outcome `json:"outcome,omitempty"`
	Since      time.Time     `json:"since,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}

// Store defines the persistence interface for the publishing pipeline.
type Store interface {
	// Publication ledger
	GetPublication(ctx context.Context, productID string) (*model.Publication, error)
	RecordPublication(ctx context.Context, pub model.Publication) error
	ImportPublications(ctx context.Context, pubs []model.Publication) (int64, error)
	ClearPublications(ctx context.Context) (int64, error)
	CountPublications(ctx context.Context) (int, error)
	CountPublicationsSince(ctx context.Context, since time.Time) (int, error)
	ListPublications(ctx context.Context, limit int) ([]model.Publication, error)

	// Rotation state
	LoadCycleState(ctx context.Context) (*model.CycleState, error)
	SaveCycleState(ctx context.Context, state model.CycleState) error

	// Cycle history
	RecordCycle(ctx context.Context, rec *model.CycleRecord) error
	GetCycle(ctx context.Context, id string) (*model.CycleRecord, error)
	ListCycles(ctx context.Context, filter CycleFilter) ([]model.CycleRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
