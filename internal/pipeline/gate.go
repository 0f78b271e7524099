package pipeline

import (
	"fmt"

	"github.com/dealcast/dealcast/internal/model"
)

// Valid reports whether a candidate clears the channel's quality
// thresholds. Pure: no I/O, no mutation, so it can run over any candidate
// list in any order.
//
// waiveFlashDiscount exempts flash deals from the minimum-discount
// threshold only; price, rating, and review floors always apply.
func Valid(c *model.Candidate, profile model.ChannelProfile, waiveFlashDiscount bool) bool {
	return Reason(c, profile, waiveFlashDiscount) == ""
}

// Reason names the first threshold a candidate fails, empty when it
// clears the profile. Checks run in a fixed order so the same candidate
// always yields the same reason.
func Reason(c *model.Candidate, profile model.ChannelProfile, waiveFlashDiscount bool) string {
	if c == nil {
		return "no candidate"
	}
	if c.DiscountPercent < profile.MinDiscountPercent {
		if !(c.IsFlash && waiveFlashDiscount) {
			return fmt.Sprintf("discount %d%% below minimum %d%%", c.DiscountPercent, profile.MinDiscountPercent)
		}
	}
	if c.Rating < profile.MinRating {
		return fmt.Sprintf("rating %.1f below minimum %.1f", c.Rating, profile.MinRating)
	}
	if c.ReviewCount < profile.MinReviewCount {
		return fmt.Sprintf("%d reviews below minimum %d", c.ReviewCount, profile.MinReviewCount)
	}
	if c.CurrentPriceMinor < profile.MinPriceMinor {
		return fmt.Sprintf("price %.2f below floor %.2f", c.CurrentPriceMajor(), float64(profile.MinPriceMinor)/100)
	}
	if profile.MaxPriceMinor > 0 && c.CurrentPriceMinor > profile.MaxPriceMinor {
		return fmt.Sprintf("price %.2f above cap %.2f", c.CurrentPriceMajor(), float64(profile.MaxPriceMinor)/100)
	}
	return ""
}

// FilterValid keeps the candidates that clear the profile, preserving
// input order.
func FilterValid(candidates []*model.Candidate, profile model.ChannelProfile, waiveFlashDiscount bool) []*model.Candidate {
	out := make([]*model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if Valid(c, profile, waiveFlashDiscount) {
			out = append(out, c)
		}
	}
	return out
}
