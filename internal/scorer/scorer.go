// Package scorer ranks candidates and picks the one to publish.
package scorer

import (
	"math"
	"sort"

	"github.com/dealcast/dealcast/internal/config"
	"github.com/dealcast/dealcast/internal/model"
)

// Score computes a candidate's ranking value: weighted discount, rating,
// and a capped review term, plus a flat bonus for flash deals. Rounded to
// two decimals so stored and logged scores compare cleanly.
func Score(c *model.Candidate, cfg config.ScoringConfig) float64 {
	divisor := cfg.ReviewsDivisor
	if divisor <= 0 {
		divisor = 1
	}
	reviews := math.Min(float64(c.ReviewCount)/divisor, cfg.ReviewsCap)

	score := cfg.DiscountWeight*float64(c.DiscountPercent) +
		cfg.RatingWeight*c.Rating +
		cfg.ReviewsWeight*reviews
	if c.IsFlash {
		score += cfg.FlashBonus
	}
	return math.Round(score*100) / 100
}

// Select returns the highest-scoring candidate, or nil for an empty list.
// Ties break toward the higher discount, then toward the earlier position
// in the input, so the same list always selects the same candidate.
func Select(candidates []*model.Candidate, cfg config.ScoringConfig) *model.Candidate {
	var best *model.Candidate
	var bestScore float64
	for _, c := range candidates {
		if c == nil {
			continue
		}
		s := Score(c, cfg)
		switch {
		case best == nil:
			best, bestScore = c, s
		case s > bestScore:
			best, bestScore = c, s
		case s == bestScore && c.DiscountPercent > best.DiscountPercent:
			best, bestScore = c, s
		}
	}
	return best
}

// Ranked pairs a candidate with its computed score.
type Ranked struct {
	Candidate *model.Candidate `json:"candidate"`
	Score     float64          `json:"score"`
}

// Rank scores every candidate and sorts best-first under the same tie
// rules as Select.
func Rank(candidates []*model.Candidate, cfg config.ScoringConfig) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		out = append(out, Ranked{Candidate: c, Score: Score(c, cfg)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Candidate.DiscountPercent > out[j].Candidate.DiscountPercent
	})
	return out
}
