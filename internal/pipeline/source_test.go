package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/pkg/keepa"
)

func TestPickMode_FixedStrategies(t *testing.T) {
	cfg := testConfig()

	cfg.Pipeline.SourceMode = "flash"
	p := &Pipeline{cfg: cfg}
	assert.Equal(t, model.ModeFlash, p.pickMode(false))
	assert.Equal(t, model.ModeFlash, p.pickMode(true))

	cfg.Pipeline.SourceMode = "browse"
	assert.Equal(t, model.ModeBrowse, p.pickMode(false))
	assert.Equal(t, model.ModeBrowse, p.pickMode(true))
}

func TestPickMode_Alternate(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.SourceMode = "alternate"
	p := &Pipeline{cfg: cfg}

	assert.Equal(t, model.ModeFlash, p.pickMode(false))
	assert.Equal(t, model.ModeBrowse, p.pickMode(true))
}

func TestPickMode_Weighted(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.SourceMode = "weighted"
	cfg.Pipeline.FlashWeight = 0.5

	p := &Pipeline{cfg: cfg, rng: func() float64 { return 0.2 }}
	assert.Equal(t, model.ModeFlash, p.pickMode(false))

	p.rng = func() float64 { return 0.9 }
	assert.Equal(t, model.ModeBrowse, p.pickMode(false))
}

func TestBrowseQuery_NarrowsDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Keepa.MaxSalesRank = 30000
	cfg.Keepa.BrowseDateRange = 2
	cfg.Keepa.BrowseSortType = 3
	p := &Pipeline{cfg: cfg}

	profile := model.ChannelProfile{
		Key:                "tech",
		CategoryIDs:        []int64{560798, 412609011},
		MinDiscountPercent: 25,
		MinPriceMinor:      1000,
		MaxPriceMinor:      50000,
	}

	q := p.browseQuery(profile)
	assert.Equal(t, 8, q.DomainID)
	assert.Equal(t, []int64{560798, 412609011}, q.IncludeCategories)
	assert.Equal(t, []int{25, 100}, q.DeltaPercentRange)
	assert.Equal(t, []int{0, 30000}, q.SalesRankRange)
	assert.Equal(t, 2, q.DateRange)
	assert.Equal(t, 3, q.SortType)
	assert.Equal(t, []int{1000, 50000}, q.CurrentRange)
}

func TestBrowseQuery_KeepsBaselineWithoutOverrides(t *testing.T) {
	cfg := testConfig()
	p := &Pipeline{cfg: cfg}

	profile := model.ChannelProfile{Key: "tech", CategoryIDs: []int64{560798}, MinDiscountPercent: 20}
	q := p.browseQuery(profile)

	base := keepa.DefaultDealQuery(8, []int64{560798}, 20)
	assert.Equal(t, base.CurrentRange, q.CurrentRange)
	assert.Equal(t, base.SalesRankRange, q.SalesRankRange)
	assert.Equal(t, base.SortType, q.SortType)
}

func TestSourceCandidates_FlashNormalizes(t *testing.T) {
	tp := newTestPipeline(t, testConfig())
	ctx := context.Background()

	expired := flashDeal("B0GONE")
	expired.DealState = "EXPIRED"
	tp.deals.On("LightningDeals", ctx).
		Return([]keepa.FlashDeal{flashDeal("B0LIVE"), expired}, nil).Once()

	cands, raw, err := tp.sourceCandidates(ctx, model.ModeFlash, testProfiles()[0])
	require.NoError(t, err)
	assert.Equal(t, 2, raw)
	require.Len(t, cands, 1)
	assert.Equal(t, "B0LIVE", cands[0].ProductID)
	assert.True(t, cands[0].IsFlash)
}

func TestSourceCandidates_BrowseUsesChannelQuery(t *testing.T) {
	tp := newTestPipeline(t, testConfig())
	ctx := context.Background()

	var gotQuery keepa.DealQuery
	tp.deals.On("Deals", ctx, mock.AnythingOfType("keepa.DealQuery")).
		Run(func(args mock.Arguments) { gotQuery = args.Get(1).(keepa.DealQuery) }).
		Return([]keepa.BrowseDeal{{
			ASIN:        "X1",
			Title:       "Browse Deal",
			Current:     []int64{1000, 2000},
			Rating:      45,
			ReviewCount: 80,
		}}, nil).Once()

	cands, raw, err := tp.sourceCandidates(ctx, model.ModeBrowse, testProfiles()[0])
	require.NoError(t, err)
	assert.Equal(t, 1, raw)
	require.Len(t, cands, 1)
	assert.Equal(t, "X1", cands[0].ProductID)
	assert.Equal(t, 50, cands[0].DiscountPercent)
	assert.False(t, cands[0].IsFlash)

	assert.Equal(t, []int64{560798}, gotQuery.IncludeCategories)
	assert.Equal(t, []int{20, 100}, gotQuery.DeltaPercentRange)
}

func TestSourceCandidates_FeedError(t *testing.T) {
	tp := newTestPipeline(t, testConfig())
	ctx := context.Background()

	tp.deals.On("LightningDeals", ctx).
		Return(nil, errors.New("upstream down")).Once()

	cands, raw, err := tp.sourceCandidates(ctx, model.ModeFlash, testProfiles()[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch flash feed")
	assert.Nil(t, cands)
	assert.Zero(t, raw)
}
