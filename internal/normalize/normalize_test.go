package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealcast/dealcast/pkg/keepa"
)

func TestFlash_Success(t *testing.T) {
	c := Flash(keepa.FlashDeal{
		ASIN:         "B0TESTA",
		Title:        "Cuffie wireless",
		Image:        "61abc._SL500_.jpg",
		DealPrice:    2999,
		CurrentPrice: 5999,
		Rating:       45,
		TotalReviews: 1234,
		PercentOff:   50,
		DealState:    keepa.DealStateAvailable,
	})

	require.NotNil(t, c)
	assert.Equal(t, "B0TESTA", c.ProductID)
	assert.Equal(t, "Cuffie wireless", c.Title)
	assert.Equal(t, int64(2999), c.CurrentPriceMinor)
	assert.Equal(t, int64(5999), c.ReferencePriceMinor)
	assert.Equal(t, 50, c.DiscountPercent)
	assert.Equal(t, 4.5, c.Rating)
	assert.Equal(t, 1234, c.ReviewCount)
	assert.Equal(t, "61abc._SL500_.jpg", c.ImageRef)
	assert.True(t, c.IsFlash)
}

func TestFlash_WaitlistAccepted(t *testing.T) {
	c := Flash(keepa.FlashDeal{
		ASIN:         "B0WAIT",
		DealPrice:    1000,
		CurrentPrice: 2000,
		DealState:    keepa.DealStateWaitlist,
	})
	require.NotNil(t, c)
	assert.True(t, c.IsFlash)
}

func TestFlash_DerivesDiscountWhenAbsent(t *testing.T) {
	c := Flash(keepa.FlashDeal{
		ASIN:         "B0DERIVE",
		DealPrice:    1490,
		CurrentPrice: 2980,
		DealState:    keepa.DealStateAvailable,
	})
	require.NotNil(t, c)
	assert.Equal(t, 50, c.DiscountPercent)
}

func TestFlash_Rejects(t *testing.T) {
	base := keepa.FlashDeal{
		ASIN:         "B0TESTA",
		DealPrice:    2999,
		CurrentPrice: 5999,
		Rating:       45,
		DealState:    keepa.DealStateAvailable,
	}

	tests := []struct {
		name   string
		mutate func(*keepa.FlashDeal)
	}{
		{"expired state", func(d *keepa.FlashDeal) { d.DealState = "EXPIRED" }},
		{"empty state", func(d *keepa.FlashDeal) { d.DealState = "" }},
		{"missing deal price", func(d *keepa.FlashDeal) { d.DealPrice = 0 }},
		{"missing pre-deal price", func(d *keepa.FlashDeal) { d.CurrentPrice = 0 }},
		{"missing identifier", func(d *keepa.FlashDeal) { d.ASIN = "" }},
		{"deal above pre-deal price", func(d *keepa.FlashDeal) { d.DealPrice = 6999 }},
		{"rating out of range", func(d *keepa.FlashDeal) { d.Rating = 55 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			assert.Nil(t, Flash(d))
		})
	}
}

func TestBrowse_Success(t *testing.T) {
	c := Browse(keepa.BrowseDeal{
		ASIN:        "X1",
		Title:       "Aspirapolvere robot",
		ImagesCSV:   "71xyz.jpg,81abc.jpg",
		Current:     []int64{1000, 2000},
		Rating:      45,
		ReviewCount: 50,
		RootCat:     560798,
	}, 1)

	require.NotNil(t, c)
	assert.Equal(t, "X1", c.ProductID)
	assert.Equal(t, int64(1000), c.CurrentPriceMinor)
	assert.Equal(t, int64(2000), c.ReferencePriceMinor)
	assert.Equal(t, 50, c.DiscountPercent)
	assert.Equal(t, 4.5, c.Rating)
	assert.Equal(t, 50, c.ReviewCount)
	assert.Equal(t, "71xyz.jpg", c.ImageRef)
	assert.Equal(t, int64(560798), c.CategoryID)
	assert.False(t, c.IsFlash)
}

func TestBrowse_AbsentRatingAndReviews(t *testing.T) {
	c := Browse(keepa.BrowseDeal{
		ASIN:    "B0NORATE",
		Current: []int64{1000, 2000},
	}, 1)

	require.NotNil(t, c)
	assert.Zero(t, c.Rating)
	assert.Zero(t, c.ReviewCount)
}

func TestBrowse_DiscountRounding(t *testing.T) {
	tests := []struct {
		name     string
		current  []int64
		discount int
	}{
		{"rounds up", []int64{504, 1000}, 50},    // 49.6
		{"rounds down", []int64{1011, 2000}, 49}, // 49.45
		{"exact", []int64{1500, 2000}, 25},
		{"no discount", []int64{2000, 2000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Browse(keepa.BrowseDeal{ASIN: "B0ROUND", Current: tt.current}, 1)
			require.NotNil(t, c)
			assert.Equal(t, tt.discount, c.DiscountPercent)
		})
	}
}

func TestBrowse_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		deal     keepa.BrowseDeal
		refIndex int
	}{
		{"no price slots", keepa.BrowseDeal{ASIN: "X"}, 1},
		{"reference slot absent", keepa.BrowseDeal{ASIN: "X", Current: []int64{1000}}, 1},
		{"current sentinel", keepa.BrowseDeal{ASIN: "X", Current: []int64{-1, 2000}}, 1},
		{"reference sentinel", keepa.BrowseDeal{ASIN: "X", Current: []int64{1000, -1}}, 1},
		{"current zero", keepa.BrowseDeal{ASIN: "X", Current: []int64{0, 2000}}, 1},
		{"reference below current", keepa.BrowseDeal{ASIN: "X", Current: []int64{2000, 1000}}, 1},
		{"missing identifier", keepa.BrowseDeal{Current: []int64{1000, 2000}}, 1},
		{"reference index zero", keepa.BrowseDeal{ASIN: "X", Current: []int64{1000, 2000}}, 0},
		{"reference index out of range", keepa.BrowseDeal{ASIN: "X", Current: []int64{1000, 2000}}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Browse(tt.deal, tt.refIndex))
		})
	}
}

func TestDetail_Success(t *testing.T) {
	csv := make([][]int64, 18)
	// Alternating keepa-minute/value pairs with a sentinel gap.
	csv[keepa.SeriesAmazon] = []int64{100, 5000, 200, -1, 300, 4000, 400, 3000}
	csv[keepa.SeriesRating] = []int64{100, 40, 300, 42}
	csv[keepa.SeriesReviews] = []int64{100, 300, 300, 321}

	c := Detail(keepa.ProductDetail{
		ASIN:         "B0HIST",
		Title:        "Frullatore",
		ImagesCSV:    "41img.jpg",
		CSV:          csv,
		RootCategory: 3370831,
	}, 90)

	require.NotNil(t, c)
	assert.Equal(t, "B0HIST", c.ProductID)
	assert.Equal(t, int64(3000), c.CurrentPriceMinor)
	// Mean of 5000, 4000, 3000.
	assert.Equal(t, int64(4000), c.ReferencePriceMinor)
	assert.Equal(t, 25, c.DiscountPercent)
	assert.Equal(t, 4.2, c.Rating)
	assert.Equal(t, 321, c.ReviewCount)
	assert.Equal(t, "41img.jpg", c.ImageRef)
	assert.Equal(t, int64(3370831), c.CategoryID)
	assert.False(t, c.IsFlash)
}

func TestDetail_WindowBoundsMean(t *testing.T) {
	csv := make([][]int64, 1)
	csv[keepa.SeriesAmazon] = []int64{100, 9000, 200, 4000, 300, 3000}

	c := Detail(keepa.ProductDetail{ASIN: "B0WIN", CSV: csv}, 2)

	require.NotNil(t, c)
	assert.Equal(t, int64(3000), c.CurrentPriceMinor)
	// Only the trailing two values feed the mean; 9000 falls outside.
	assert.Equal(t, int64(3500), c.ReferencePriceMinor)
	assert.Equal(t, 14, c.DiscountPercent) // 14.28 rounds down
}

func TestDetail_MeanRounding(t *testing.T) {
	csv := make([][]int64, 1)
	csv[keepa.SeriesAmazon] = []int64{100, 2000, 200, 1001}

	c := Detail(keepa.ProductDetail{ASIN: "B0MEAN", CSV: csv}, 90)

	require.NotNil(t, c)
	assert.Equal(t, int64(1501), c.ReferencePriceMinor) // 1500.5 rounds up
}

func TestDetail_Rejects(t *testing.T) {
	tests := []struct {
		name string
		p    keepa.ProductDetail
	}{
		{"no series", keepa.ProductDetail{ASIN: "X"}},
		{"empty price series", keepa.ProductDetail{ASIN: "X", CSV: [][]int64{{}}}},
		{"all sentinels", keepa.ProductDetail{ASIN: "X", CSV: [][]int64{{100, -1, 200, -1}}}},
		{"price above trailing mean", keepa.ProductDetail{ASIN: "X", CSV: [][]int64{{100, 1000, 200, 1000, 300, 4000}}}},
		{"missing identifier", keepa.ProductDetail{CSV: [][]int64{{100, 1000, 200, 2000}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Detail(tt.p, 90))
		})
	}
}

func TestDetail_DefaultWindow(t *testing.T) {
	series := make([]int64, 0, 200*2)
	// 150 old entries at 9000, then 90 recent ones at 1000. The default
	// window must only see the recent plateau.
	for i := 0; i < 150; i++ {
		series = append(series, int64(i), 9000)
	}
	for i := 150; i < 240; i++ {
		series = append(series, int64(i), 1000)
	}

	c := Detail(keepa.ProductDetail{ASIN: "B0DFLT", CSV: [][]int64{series}}, 0)

	require.NotNil(t, c)
	assert.Equal(t, int64(1000), c.CurrentPriceMinor)
	assert.Equal(t, int64(1000), c.ReferencePriceMinor)
	assert.Zero(t, c.DiscountPercent)
}
