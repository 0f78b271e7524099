package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealcast/dealcast/internal/config"
	"github.com/dealcast/dealcast/internal/model"
)

func testWeights() config.ScoringConfig {
	return config.ScoringConfig{
		DiscountWeight: 1.0,
		RatingWeight:   10.0,
		ReviewsWeight:  5.0,
		ReviewsDivisor: 100,
		ReviewsCap:     10,
		FlashBonus:     15.0,
	}
}

func TestScore(t *testing.T) {
	cfg := testWeights()

	tests := []struct {
		name string
		c    model.Candidate
		want float64
	}{
		{
			"discount rating reviews",
			model.Candidate{DiscountPercent: 50, Rating: 4.5, ReviewCount: 200},
			// 50 + 45 + 5*2
			105,
		},
		{
			"review term capped",
			model.Candidate{DiscountPercent: 30, Rating: 4.0, ReviewCount: 500000},
			// 30 + 40 + 5*10
			120,
		},
		{
			"flash bonus",
			model.Candidate{DiscountPercent: 50, Rating: 4.5, ReviewCount: 200, IsFlash: true},
			120,
		},
		{
			"zero candidate",
			model.Candidate{},
			0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(&tt.c, cfg))
		})
	}
}

func TestScore_RoundsToTwoDecimals(t *testing.T) {
	cfg := testWeights()
	c := &model.Candidate{Rating: 4.333, ReviewCount: 33}
	// 43.33 + 1.65
	assert.Equal(t, 44.98, Score(c, cfg))
}

func TestScore_ZeroDivisorGuard(t *testing.T) {
	cfg := testWeights()
	cfg.ReviewsDivisor = 0
	c := &model.Candidate{ReviewCount: 3}
	// Divisor falls back to 1; the cap still bounds the term.
	assert.Equal(t, 15.0, Score(c, cfg))
}

func TestSelect_Empty(t *testing.T) {
	assert.Nil(t, Select(nil, testWeights()))
	assert.Nil(t, Select([]*model.Candidate{}, testWeights()))
	assert.Nil(t, Select([]*model.Candidate{nil, nil}, testWeights()))
}

func TestSelect_Highest(t *testing.T) {
	weak := &model.Candidate{ProductID: "A", DiscountPercent: 20, Rating: 4.0}
	strong := &model.Candidate{ProductID: "B", DiscountPercent: 60, Rating: 4.8}

	got := Select([]*model.Candidate{weak, strong}, testWeights())
	require.NotNil(t, got)
	assert.Equal(t, "B", got.ProductID)
}

func TestSelect_FlashBonusCanDecide(t *testing.T) {
	browse := &model.Candidate{ProductID: "A", DiscountPercent: 40, Rating: 4.5}
	flash := &model.Candidate{ProductID: "B", DiscountPercent: 30, Rating: 4.5, IsFlash: true}

	got := Select([]*model.Candidate{browse, flash}, testWeights())
	require.NotNil(t, got)
	assert.Equal(t, "B", got.ProductID)
}

func TestSelect_TieBreaksOnDiscount(t *testing.T) {
	// Same score by trading discount for rating: 50+40 vs 40+50.
	higherDiscount := &model.Candidate{ProductID: "A", DiscountPercent: 50, Rating: 4.0}
	higherRating := &model.Candidate{ProductID: "B", DiscountPercent: 40, Rating: 5.0}

	got := Select([]*model.Candidate{higherRating, higherDiscount}, testWeights())
	require.NotNil(t, got)
	assert.Equal(t, "A", got.ProductID)
}

func TestSelect_FullTieKeepsFirstSeen(t *testing.T) {
	first := &model.Candidate{ProductID: "A", DiscountPercent: 50, Rating: 4.0}
	second := &model.Candidate{ProductID: "B", DiscountPercent: 50, Rating: 4.0}

	for i := 0; i < 5; i++ {
		got := Select([]*model.Candidate{first, second}, testWeights())
		require.NotNil(t, got)
		assert.Equal(t, "A", got.ProductID)
	}
}

func TestRank_OrderAndStability(t *testing.T) {
	a := &model.Candidate{ProductID: "A", DiscountPercent: 20}
	b := &model.Candidate{ProductID: "B", DiscountPercent: 60}
	c := &model.Candidate{ProductID: "C", DiscountPercent: 60}

	ranked := Rank([]*model.Candidate{a, b, c, nil}, testWeights())
	require.Len(t, ranked, 3)
	assert.Equal(t, "B", ranked[0].Candidate.ProductID)
	assert.Equal(t, "C", ranked[1].Candidate.ProductID)
	assert.Equal(t, "A", ranked[2].Candidate.ProductID)
	assert.Equal(t, 60.0, ranked[0].Score)
}
