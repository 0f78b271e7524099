package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/normalize"
	"github.com/dealcast/dealcast/pkg/keepa"
)

// pickMode returns the primary feed for this cycle under the configured
// strategy. The alternate strategy flips between feeds on consecutive
// cycles via the persisted flip bit; weighted draws from the injected rng.
func (p *Pipeline) pickMode(flip bool) model.SourceMode {
	switch p.cfg.Pipeline.SourceMode {
	case "flash":
		return model.ModeFlash
	case "browse":
		return model.ModeBrowse
	case "weighted":
		if p.rng() < p.cfg.Pipeline.FlashWeight {
			return model.ModeFlash
		}
		return model.ModeBrowse
	default: // alternate
		if flip {
			return model.ModeBrowse
		}
		return model.ModeFlash
	}
}

// sourceCandidates pulls one feed and normalizes every record it returns.
// The raw count comes back alongside the survivors so cycle records can
// show how much the normalizer discarded.
func (p *Pipeline) sourceCandidates(ctx context.Context, mode model.SourceMode, profile model.ChannelProfile) ([]*model.Candidate, int, error) {
	switch mode {
	case model.ModeFlash:
		deals, err := p.deals.LightningDeals(ctx)
		if err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: fetch flash feed")
		}
		out := make([]*model.Candidate, 0, len(deals))
		for _, d := range deals {
			if c := normalize.Flash(d); c != nil {
				out = append(out, c)
			}
		}
		return out, len(deals), nil

	case model.ModeBrowse:
		deals, err := p.deals.Deals(ctx, p.browseQuery(profile))
		if err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: fetch browse feed")
		}
		out := make([]*model.Candidate, 0, len(deals))
		for _, d := range deals {
			if c := normalize.Browse(d, p.cfg.Pipeline.ReferencePriceIndex); c != nil {
				out = append(out, c)
			}
		}
		return out, len(deals), nil

	default:
		return nil, 0, eris.Errorf("pipeline: unknown source mode %q", mode)
	}
}

// browseQuery narrows the baseline browse query to the channel's
// categories, discount floor, and price window.
func (p *Pipeline) browseQuery(profile model.ChannelProfile) keepa.DealQuery {
	q := keepa.DefaultDealQuery(p.cfg.Keepa.Domain, profile.CategoryIDs, profile.MinDiscountPercent)
	if p.cfg.Keepa.MaxSalesRank > 0 {
		q.SalesRankRange = []int{0, p.cfg.Keepa.MaxSalesRank}
	}
	if p.cfg.Keepa.BrowseDateRange > 0 {
		q.DateRange = p.cfg.Keepa.BrowseDateRange
	}
	if p.cfg.Keepa.BrowseSortType > 0 {
		q.SortType = p.cfg.Keepa.BrowseSortType
	}
	if profile.MinPriceMinor > 0 {
		q.CurrentRange[0] = int(profile.MinPriceMinor)
	}
	if profile.MaxPriceMinor > 0 {
		q.CurrentRange[1] = int(profile.MaxPriceMinor)
	}
	return q
}
