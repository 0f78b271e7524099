package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dealcast/dealcast/internal/config"
	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/store"
	"github.com/dealcast/dealcast/pkg/keepa"
	keepamocks "github.com/dealcast/dealcast/pkg/keepa/mocks"
)

// fixedNow keeps every cycle inside the active window and makes cooldown
// arithmetic deterministic.
var fixedNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Affiliate: config.AffiliateConfig{Domain: "amazon.it", Tag: "dealcast-21"},
		Keepa:     config.KeepaConfig{Domain: 8},
		Scheduler: config.SchedulerConfig{
			IntervalMins:    20,
			ActiveStartHour: 0,
			ActiveEndHour:   24,
			Timezone:        "UTC",
		},
		Pipeline: config.PipelineConfig{
			SourceMode:          "flash",
			FlashWeight:         0.5,
			CooldownHours:       48,
			ResetOnExhaustion:   true,
			ReferencePriceIndex: 1,
			DetailWindow:        90,
		},
		Scoring: config.ScoringConfig{
			DiscountWeight: 1,
			RatingWeight:   10,
			ReviewsWeight:  5,
			ReviewsDivisor: 100,
			ReviewsCap:     10,
			FlashBonus:     15,
		},
	}
}

func testProfiles() []model.ChannelProfile {
	return []model.ChannelProfile{
		{
			Key:                "tech",
			ChatID:             "@techdeals",
			CategoryIDs:        []int64{560798},
			MinDiscountPercent: 20,
			Emojis:             []string{"💻"},
		},
		{
			Key:                "moda",
			ChatID:             "@modadeals",
			CategoryIDs:        []int64{1571275031},
			MinDiscountPercent: 25,
			Emojis:             []string{"✨"},
		},
	}
}

type testPipeline struct {
	*Pipeline
	deals *keepamocks.MockClient
	bot   *mockTelegramClient
	st    store.Store
}

func newTestPipeline(t *testing.T, cfg *config.Config) *testPipeline {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	deals := keepamocks.NewMockClient(t)
	bot := &mockTelegramClient{}

	p := New(cfg, st, deals, bot, testProfiles())
	p.now = func() time.Time { return fixedNow }
	return &testPipeline{Pipeline: p, deals: deals, bot: bot, st: st}
}

// flashDeal builds a feed entry that normalizes cleanly: 50% off, rated
// 4.5 with plenty of reviews.
func flashDeal(asin string) keepa.FlashDeal {
	return keepa.FlashDeal{
		ASIN:         asin,
		Title:        "Deal " + asin,
		DealState:    keepa.DealStateAvailable,
		DealPrice:    2999,
		CurrentPrice: 5999,
		PercentOff:   50,
		Rating:       45,
		TotalReviews: 1234,
		Image:        asin + ".jpg",
	}
}
