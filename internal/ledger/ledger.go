// Package ledger gates republication behind a cooldown window. It owns the
// publication history: nothing else writes to it, and clearing it is the
// only escape hatch when every known product has been posted recently.
package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/store"
)

// Ledger tracks which products were published and when.
type Ledger struct {
	store    store.Store
	cooldown time.Duration

	now func() time.Time // overridable in tests
}

// New creates a Ledger over the given store with the republish cooldown.
func New(st store.Store, cooldown time.Duration) *Ledger {
	return &Ledger{store: st, cooldown: cooldown, now: time.Now}
}

// Cooldown returns the configured republish cooldown.
func (l *Ledger) Cooldown() time.Duration {
	return l.cooldown
}

// Eligible reports whether a product may be published now: never published,
// or last published at least a cooldown ago.
func (l *Ledger) Eligible(ctx context.Context, productID string) (bool, error) {
	pub, err := l.store.GetPublication(ctx, productID)
	if err != nil {
		return false, eris.Wrap(err, "ledger: look up publication")
	}
	if pub == nil {
		return true, nil
	}
	return l.now().Sub(pub.PublishedAt) >= l.cooldown, nil
}

// FilterEligible keeps the candidates whose products are currently
// publishable, preserving input order.
func (l *Ledger) FilterEligible(ctx context.Context, candidates []*model.Candidate) ([]*model.Candidate, error) {
	out := make([]*model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		ok, err := l.Eligible(ctx, c.ProductID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// RecordPublished marks the product as published on the given channel.
// Republishing overwrites the previous timestamp. Times are stored in UTC
// so timestamp comparisons behave the same on every backend.
func (l *Ledger) RecordPublished(ctx context.Context, productID, channelKey string, at time.Time) error {
	err := l.store.RecordPublication(ctx, model.Publication{
		ProductID:   productID,
		ChannelKey:  channelKey,
		PublishedAt: at.UTC(),
	})
	return eris.Wrap(err, "ledger: record publication")
}

// ResetAll clears the entire publication history, making every product
// eligible again. Returns the number of records removed.
func (l *Ledger) ResetAll(ctx context.Context) (int64, error) {
	n, err := l.store.ClearPublications(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: clear publications")
	}
	zap.L().Info("ledger: publication history cleared", zap.Int64("removed", n))
	return n, nil
}

// Stats summarizes the ledger for operator commands and the status API.
type Stats struct {
	TotalProducts int        `json:"total_products"`
	InCooldown    int        `json:"in_cooldown"`
	Eligible      int        `json:"eligible"`
	CooldownHours float64    `json:"cooldown_hours"`
	LastPublished *time.Time `json:"last_published,omitempty"`
}

// Stats reports how much of the known product pool is currently held back
// by the cooldown.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	total, err := l.store.CountPublications(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: count publications")
	}
	inCooldown, err := l.store.CountPublicationsSince(ctx, l.now().UTC().Add(-l.cooldown))
	if err != nil {
		return nil, eris.Wrap(err, "ledger: count recent publications")
	}

	stats := &Stats{
		TotalProducts: total,
		InCooldown:    inCooldown,
		Eligible:      total - inCooldown,
		CooldownHours: l.cooldown.Hours(),
	}
	if total > 0 {
		newest, err := l.store.ListPublications(ctx, 1)
		if err != nil {
			return nil, eris.Wrap(err, "ledger: newest publication")
		}
		if len(newest) > 0 {
			stats.LastPublished = &newest[0].PublishedAt
		}
	}
	return stats, nil
}
