package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/normalize"
	"github.com/dealcast/dealcast/internal/render"
	"github.com/dealcast/dealcast/internal/scorer"
)

// Preview sources and ranks candidates for one channel without touching
// rotation state, the ledger, or the channel itself. With includeCooling
// set, candidates still inside the cooldown window stay in the ranking.
func (p *Pipeline) Preview(ctx context.Context, channelKey string, mode model.SourceMode, includeCooling bool) ([]scorer.Ranked, error) {
	profile, ok := p.channelByKey(channelKey)
	if !ok {
		return nil, eris.Errorf("pipeline: unknown channel %q", channelKey)
	}

	candidates, _, err := p.sourceCandidates(ctx, mode, profile)
	if err != nil {
		return nil, err
	}
	valid := FilterValid(candidates, profile, p.cfg.Pipeline.FlashDiscountWaiver)
	if !includeCooling {
		if valid, err = p.ledger.FilterEligible(ctx, valid); err != nil {
			return nil, err
		}
	}
	return scorer.Rank(valid, p.cfg.Scoring), nil
}

// PreviewDetail fetches one product and normalizes it the way the verify
// phase does.
func (p *Pipeline) PreviewDetail(ctx context.Context, productID string) (*model.Candidate, error) {
	details, err := p.deals.Products(ctx, []string{productID})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch product detail")
	}
	if len(details) == 0 {
		return nil, eris.Errorf("pipeline: no product data for %s", productID)
	}
	c := normalize.Detail(details[0], p.cfg.Pipeline.DetailWindow)
	if c == nil {
		return nil, eris.Errorf("pipeline: product %s has no usable price data", productID)
	}
	return c, nil
}

// RenderPreview renders the post a candidate would produce on a channel.
func (p *Pipeline) RenderPreview(c *model.Candidate, channelKey string) (render.Post, error) {
	profile, ok := p.channelByKey(channelKey)
	if !ok {
		return render.Post{}, eris.Errorf("pipeline: unknown channel %q", channelKey)
	}
	return p.renderer.Render(c, profile), nil
}

// GateReason reports why a candidate would not post on the channel, empty
// when it clears the gate.
func (p *Pipeline) GateReason(c *model.Candidate, channelKey string) (string, error) {
	profile, ok := p.channelByKey(channelKey)
	if !ok {
		return "", eris.Errorf("pipeline: unknown channel %q", channelKey)
	}
	return Reason(c, profile, p.cfg.Pipeline.FlashDiscountWaiver), nil
}

func (p *Pipeline) channelByKey(key string) (model.ChannelProfile, bool) {
	for _, c := range p.channels {
		if c.Key == key {
			return c, true
		}
	}
	return model.ChannelProfile{}, false
}
