// Package normalize converts source-specific feed records into the canonical
// candidate shape. Each converter fails closed: a record missing a required
// field or violating a candidate invariant comes back nil and never reaches
// the quality filter.
package normalize

import (
	"math"
	"strings"

	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/pkg/keepa"
)

// DefaultWindow bounds the trailing price history that feeds the reference
// mean when no explicit window is configured.
const DefaultWindow = 90

// Flash converts a lightning-feed record. The deal must still be purchasable
// (available or waitlisted) and carry both the deal price and the pre-deal
// price; anything else returns nil.
func Flash(d keepa.FlashDeal) *model.Candidate {
	switch d.DealState {
	case keepa.DealStateAvailable, keepa.DealStateWaitlist:
	default:
		return nil
	}
	if d.DealPrice <= 0 || d.CurrentPrice <= 0 {
		return nil
	}

	c := &model.Candidate{
		ProductID:           d.ASIN,
		Title:               d.Title,
		CurrentPriceMinor:   d.DealPrice,
		ReferencePriceMinor: d.CurrentPrice,
		DiscountPercent:     d.PercentOff,
		Rating:              float64(d.Rating) / 10,
		ReviewCount:         d.TotalReviews,
		ImageRef:            d.Image,
		IsFlash:             true,
	}
	if c.DiscountPercent <= 0 {
		c.DiscountPercent = derivedDiscount(c.CurrentPriceMinor, c.ReferencePriceMinor)
	}
	return validated(c)
}

// Browse converts a browse-feed record. refIndex selects the reference price
// slot in the current array (slot 0 is always the price now); both slots must
// be present and positive. Absent rating and review fields normalize to zero
// and are left for the quality filter to reject.
func Browse(d keepa.BrowseDeal, refIndex int) *model.Candidate {
	if refIndex < 1 || refIndex >= len(d.Current) {
		return nil
	}
	current, reference := d.Current[0], d.Current[refIndex]
	if current <= 0 || reference <= 0 {
		return nil
	}

	c := &model.Candidate{
		ProductID:           d.ASIN,
		Title:               d.Title,
		CurrentPriceMinor:   current,
		ReferencePriceMinor: reference,
		DiscountPercent:     derivedDiscount(current, reference),
		Rating:              float64(d.Rating) / 10,
		ReviewCount:         d.ReviewCount,
		ImageRef:            firstImage(d.ImagesCSV),
		CategoryID:          d.RootCat,
	}
	return validated(c)
}

// Detail converts a product-history record. The price now is the last
// non-sentinel entry of the price series; the reference price is the mean of
// the trailing window of non-sentinel entries. An empty series returns nil.
func Detail(p keepa.ProductDetail, window int) *model.Candidate {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(p.CSV) <= keepa.SeriesAmazon {
		return nil
	}
	prices := seriesValues(p.CSV[keepa.SeriesAmazon])
	if len(prices) == 0 {
		return nil
	}
	current := prices[len(prices)-1]
	reference := meanTail(prices, window)

	c := &model.Candidate{
		ProductID:           p.ASIN,
		Title:               p.Title,
		CurrentPriceMinor:   current,
		ReferencePriceMinor: reference,
		DiscountPercent:     derivedDiscount(current, reference),
		ImageRef:            firstImage(p.ImagesCSV),
		CategoryID:          p.RootCategory,
	}
	if v, ok := lastValue(p.CSV, keepa.SeriesRating); ok {
		c.Rating = float64(v) / 10
	}
	if v, ok := lastValue(p.CSV, keepa.SeriesReviews); ok {
		c.ReviewCount = int(v)
	}
	return validated(c)
}

// validated returns the candidate when it satisfies the shape every
// downstream stage assumes, nil otherwise.
func validated(c *model.Candidate) *model.Candidate {
	if c.ProductID == "" {
		return nil
	}
	if c.CurrentPriceMinor <= 0 || c.ReferencePriceMinor < c.CurrentPriceMinor {
		return nil
	}
	if c.DiscountPercent < 0 || c.DiscountPercent > 100 {
		return nil
	}
	if c.Rating < 0 || c.Rating > 5 {
		return nil
	}
	if c.ReviewCount < 0 {
		return nil
	}
	return c
}

// derivedDiscount computes the rounded percentage saved against the
// reference price. Rounding, not truncation, so a 49.6% cut reads as 50.
func derivedDiscount(current, reference int64) int {
	if reference <= 0 {
		return 0
	}
	return int(math.Round(float64(reference-current) / float64(reference) * 100))
}

// seriesValues extracts the value column from an alternating timestamp/value
// series, dropping negative sentinel entries.
func seriesValues(series []int64) []int64 {
	vals := make([]int64, 0, len(series)/2)
	for i := 1; i < len(series); i += 2 {
		if series[i] >= 0 {
			vals = append(vals, series[i])
		}
	}
	return vals
}

// lastValue returns the newest non-sentinel value of the given series index.
func lastValue(csv [][]int64, index int) (int64, bool) {
	if index >= len(csv) {
		return 0, false
	}
	vals := seriesValues(csv[index])
	if len(vals) == 0 {
		return 0, false
	}
	return vals[len(vals)-1], true
}

// meanTail averages the trailing window of vals, rounded to the nearest
// minor unit.
func meanTail(vals []int64, window int) int64 {
	if len(vals) == 0 {
		return 0
	}
	tail := vals
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	var sum int64
	for _, v := range tail {
		sum += v
	}
	return int64(math.Round(float64(sum) / float64(len(tail))))
}

// firstImage picks the lead entry of a comma-separated image list.
func firstImage(csv string) string {
	if i := strings.IndexByte(csv, ','); i >= 0 {
		return csv[:i]
	}
	return csv
}
