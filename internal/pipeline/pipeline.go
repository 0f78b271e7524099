// Package pipeline orchestrates publication cycles: source a deal feed,
// normalize it, quality-filter, dedup against the ledger, select the best
// candidate, and publish it to the channel whose turn it is. A cycle can
// end without posting at every stage; none of those endings is an error
// for the surrounding loop.
package pipeline

import (
	"context"
	"math/rand"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealcast/dealcast/internal/config"
	"github.com/dealcast/dealcast/internal/ledger"
	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/normalize"
	"github.com/dealcast/dealcast/internal/render"
	"github.com/dealcast/dealcast/internal/scorer"
	"github.com/dealcast/dealcast/internal/store"
	"github.com/dealcast/dealcast/pkg/keepa"
	"github.com/dealcast/dealcast/pkg/telegram"
)

// Pipeline runs publication cycles over a fixed channel rotation.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	deals    keepa.Client
	bot      telegram.Client
	ledger   *ledger.Ledger
	renderer *render.Renderer
	channels []model.ChannelProfile

	loc *time.Location
	now func() time.Time // overridable in tests
	rng func() float64   // weighted mode draw, overridable in tests
}

// New creates a Pipeline with all collaborators.
func New(cfg *config.Config, st store.Store, deals keepa.Client, bot telegram.Client, channels []model.ChannelProfile) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		deals:    deals,
		bot:      bot,
		ledger:   ledger.New(st, time.Duration(cfg.Pipeline.CooldownHours)*time.Hour),
		renderer: render.New(cfg.Affiliate.Domain, cfg.Affiliate.Tag),
		channels: channels,
		now:      time.Now,
		rng:      rand.Float64,
	}
}

// Ledger exposes the dedup ledger the pipeline publishes through.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.ledger
}

// RunCycle executes one publication cycle and returns its durable record.
// Failures inside the cycle are absorbed into the record's phases and
// outcome; the error return is reserved for unusable configuration or
// broken rotation state, the only conditions a later cycle cannot fix by
// itself.
func (p *Pipeline) RunCycle(ctx context.Context) (*model.CycleRecord, error) {
	if len(p.channels) == 0 {
		return nil, eris.New("pipeline: no channels configured")
	}
	loc, err := p.location()
	if err != nil {
		return nil, err
	}

	log := zap.L()
	rec := &model.CycleRecord{StartedAt: p.now().UTC()}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) {
		start := time.Now()
		res, phaseErr := fn()
		if res == nil {
			res = &model.PhaseResult{}
		}
		res.Name = name
		res.Duration = time.Since(start).Milliseconds()
		if phaseErr != nil {
			res.Status = model.PhaseStatusFailed
			res.Error = phaseErr.Error()
			rec.Error = phaseErr.Error()
			log.Warn("pipeline: phase failed", zap.String("phase", name), zap.Error(phaseErr))
		} else if res.Status == "" {
			res.Status = model.PhaseStatusComplete
		}
		rec.Phases = append(rec.Phases, *res)
	}

	// The posting-hours gate runs before any state or network work.
	if !InActiveWindow(p.now(), p.cfg.Scheduler.ActiveStartHour, p.cfg.Scheduler.ActiveEndHour, loc) {
		rec.Outcome = model.OutcomeSkippedInactive
		p.finishCycle(ctx, rec)
		log.Info("pipeline: outside active hours, skipping cycle")
		return rec, nil
	}

	// Rotation: pick this cycle's channel and primary feed, then advance
	// exactly one step. Advancing up front keeps the rotation moving even
	// when the cycle ends empty.
	state, err := p.store.LoadCycleState(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load cycle state")
	}
	if state == nil {
		state = &model.CycleState{}
	}
	profile := p.channels[state.ChannelIndex%len(p.channels)]
	primary := p.pickMode(state.ModeFlip)
	if err := p.store.SaveCycleState(ctx, model.CycleState{
		ChannelIndex: (state.ChannelIndex + 1) % len(p.channels),
		ModeFlip:     !state.ModeFlip,
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: save cycle state")
	}

	rec.ChannelKey = profile.Key
	rec.SourceMode = primary
	log.Info("pipeline: cycle started",
		zap.String("channel", profile.Key),
		zap.String("mode", string(primary)),
	)

	// Sourcing, with one fallback to the other feed in the same cycle.
	mode := primary
	var candidates []*model.Candidate
	source := func() (*model.PhaseResult, error) {
		cands, raw, srcErr := p.sourceCandidates(ctx, mode, profile)
		candidates = cands
		rec.Sourced += raw
		res := &model.PhaseResult{Metadata: map[string]any{
			"mode":       string(mode),
			"raw":        raw,
			"normalized": len(cands),
		}}
		if srcErr != nil {
			return res, srcErr
		}
		if len(cands) == 0 {
			res.Status = model.PhaseStatusEmpty
		}
		return res, nil
	}
	trackPhase("source", source)
	if len(candidates) == 0 {
		mode = mode.Other()
		trackPhase("source_fallback", source)
		rec.SourceMode = mode
	}
	if len(candidates) == 0 {
		rec.Outcome = model.OutcomeNoCandidates
		p.finishCycle(ctx, rec)
		log.Info("pipeline: both feeds came back empty", zap.String("channel", profile.Key))
		return rec, nil
	}

	// Quality filter.
	var valid []*model.Candidate
	trackPhase("filter", func() (*model.PhaseResult, error) {
		valid = FilterValid(candidates, profile, p.cfg.Pipeline.FlashDiscountWaiver)
		res := &model.PhaseResult{Metadata: map[string]any{
			"in":  len(candidates),
			"out": len(valid),
		}}
		if len(valid) == 0 {
			res.Status = model.PhaseStatusEmpty
		}
		return res, nil
	})
	rec.Valid = len(valid)
	if len(valid) == 0 {
		rec.Outcome = model.OutcomeNoCandidates
		p.finishCycle(ctx, rec)
		log.Info("pipeline: no candidate cleared the quality gate",
			zap.String("channel", profile.Key),
			zap.Int("sourced", rec.Sourced),
		)
		return rec, nil
	}

	// Dedup, with at most one pool reset per cycle.
	var eligible []*model.Candidate
	trackPhase("dedup", func() (*model.PhaseResult, error) {
		el, dedupErr := p.ledger.FilterEligible(ctx, valid)
		if dedupErr != nil {
			return nil, dedupErr
		}
		if len(el) == 0 && p.cfg.Pipeline.ResetOnExhaustion {
			if _, resetErr := p.ledger.ResetAll(ctx); resetErr != nil {
				return nil, resetErr
			}
			rec.ResetPerformed = true
			if el, dedupErr = p.ledger.FilterEligible(ctx, valid); dedupErr != nil {
				return nil, dedupErr
			}
		}
		eligible = el
		res := &model.PhaseResult{Metadata: map[string]any{
			"in":    len(valid),
			"out":   len(el),
			"reset": rec.ResetPerformed,
		}}
		if len(el) == 0 {
			res.Status = model.PhaseStatusEmpty
		}
		return res, nil
	})
	rec.Eligible = len(eligible)
	if len(eligible) == 0 {
		rec.Outcome = model.OutcomeNoCandidates
		p.finishCycle(ctx, rec)
		log.Info("pipeline: every candidate is cooling down", zap.String("channel", profile.Key))
		return rec, nil
	}

	// Selection.
	var picked *model.Candidate
	trackPhase("select", func() (*model.PhaseResult, error) {
		picked = scorer.Select(eligible, p.cfg.Scoring)
		if picked == nil {
			return &model.PhaseResult{Status: model.PhaseStatusEmpty}, nil
		}
		rec.ProductID = picked.ProductID
		rec.Title = picked.Title
		rec.Score = scorer.Score(picked, p.cfg.Scoring)
		return &model.PhaseResult{Metadata: map[string]any{
			"product_id": picked.ProductID,
			"score":      rec.Score,
		}}, nil
	})
	if picked == nil {
		rec.Outcome = model.OutcomeNoCandidates
		p.finishCycle(ctx, rec)
		return rec, nil
	}

	// Optional pre-publish verification against the product's live history.
	if p.cfg.Pipeline.VerifyBeforePublish {
		verified := false
		trackPhase("verify", func() (*model.PhaseResult, error) {
			details, verifyErr := p.deals.Products(ctx, []string{picked.ProductID})
			if verifyErr != nil {
				return nil, verifyErr
			}
			var fresh *model.Candidate
			if len(details) > 0 {
				fresh = normalize.Detail(details[0], p.cfg.Pipeline.DetailWindow)
			}
			if fresh == nil {
				return &model.PhaseResult{
					Status:   model.PhaseStatusEmpty,
					Metadata: map[string]any{"reason": "no usable history"},
				}, nil
			}
			// The history lookup cannot know these; carry them over before
			// re-running the gate.
			fresh.IsFlash = picked.IsFlash
			if fresh.Title == "" {
				fresh.Title = picked.Title
			}
			if fresh.ImageRef == "" {
				fresh.ImageRef = picked.ImageRef
			}
			if fresh.CategoryID == 0 {
				fresh.CategoryID = picked.CategoryID
			}
			if !Valid(fresh, profile, p.cfg.Pipeline.FlashDiscountWaiver) {
				return &model.PhaseResult{
					Status:   model.PhaseStatusEmpty,
					Metadata: map[string]any{"reason": "thresholds no longer met"},
				}, nil
			}
			picked = fresh
			verified = true
			return &model.PhaseResult{Metadata: map[string]any{
				"current_minor": fresh.CurrentPriceMinor,
				"discount":      fresh.DiscountPercent,
			}}, nil
		})
		if !verified {
			rec.Outcome = model.OutcomeVerifyFailed
			p.finishCycle(ctx, rec)
			log.Info("pipeline: deal no longer holds up, not publishing",
				zap.String("product_id", rec.ProductID),
			)
			return rec, nil
		}
		rec.Title = picked.Title
		rec.Score = scorer.Score(picked, p.cfg.Scoring)
	}

	// Publish. A failed publish ends the cycle without a ledger write and
	// without falling back to the next-best candidate.
	post := p.renderer.Render(picked, profile)
	published := false
	trackPhase("publish", func() (*model.PhaseResult, error) {
		if pubErr := p.publishPost(ctx, profile, post); pubErr != nil {
			return nil, pubErr
		}
		published = true
		return &model.PhaseResult{Metadata: map[string]any{
			"chat_id":    profile.ChatID,
			"with_image": post.ImageURL != "",
		}}, nil
	})
	if !published {
		rec.Outcome = model.OutcomePublishFailed
		p.finishCycle(ctx, rec)
		return rec, nil
	}

	// Record. The post is already out, so a failed write only risks one
	// early repeat; the cycle still counts as published.
	trackPhase("record", func() (*model.PhaseResult, error) {
		return nil, p.ledger.RecordPublished(ctx, picked.ProductID, profile.Key, p.now())
	})

	rec.Outcome = model.OutcomePublished
	p.finishCycle(ctx, rec)
	log.Info("pipeline: published",
		zap.String("channel", profile.Key),
		zap.String("product_id", picked.ProductID),
		zap.Int("discount", picked.DiscountPercent),
		zap.Float64("score", rec.Score),
	)
	return rec, nil
}

// publishPost sends the rendered post, as a photo with caption when the
// candidate has an image and as a plain message otherwise.
func (p *Pipeline) publishPost(ctx context.Context, profile model.ChannelProfile, post render.Post) error {
	if post.ImageURL != "" {
		return p.bot.SendPhoto(ctx, telegram.Photo{
			ChatID:    profile.ChatID,
			Photo:     post.ImageURL,
			Caption:   post.Caption,
			ParseMode: telegram.ParseModeMarkdown,
		})
	}
	return p.bot.SendMessage(ctx, telegram.Message{
		ChatID:    profile.ChatID,
		Text:      post.Caption,
		ParseMode: telegram.ParseModeMarkdown,
	})
}

// finishCycle stamps the record and persists it. History is best effort;
// a failed write never disturbs the cycle outcome.
func (p *Pipeline) finishCycle(ctx context.Context, rec *model.CycleRecord) {
	rec.FinishedAt = p.now().UTC()
	if err := p.store.RecordCycle(ctx, rec); err != nil {
		zap.L().Warn("pipeline: record cycle", zap.Error(err))
	}
}

func (p *Pipeline) location() (*time.Location, error) {
	if p.loc != nil {
		return p.loc, nil
	}
	loc, err := time.LoadLocation(p.cfg.Scheduler.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load timezone %q", p.cfg.Scheduler.Timezone)
	}
	p.loc = loc
	return loc, nil
}
