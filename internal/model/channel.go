package model

import "github.com/rotisserie/eris"

// ChannelProfile is the static per-channel configuration: where to post,
// which provider categories to browse, and the quality thresholds a
// candidate must clear. Profiles are owned by the caller and never mutated
// by the pipeline.
type ChannelProfile struct {
	Key         string  `yaml:"key" json:"key"`
	ChatID      string  `yaml:"chat_id" json:"chat_id"`
	CategoryIDs []int64 `yaml:"category_ids" json:"category_ids"`

	MinDiscountPercent int     `yaml:"min_discount_percent" json:"min_discount_percent"`
	MinRating          float64 `yaml:"min_rating" json:"min_rating"`
	MinReviewCount     int     `yaml:"min_review_count" json:"min_review_count"`
	MinPriceMinor      int64   `yaml:"min_price_minor" json:"min_price_minor"`
	MaxPriceMinor      int64   `yaml:"max_price_minor" json:"max_price_minor"` // 0 = unbounded

	// Emojis decorate rendered posts; one is picked deterministically per
	// product. Optional.
	Emojis []string `yaml:"emojis,omitempty" json:"emojis,omitempty"`
}

// Validate reports the first configuration problem in the profile.
func (p ChannelProfile) Validate() error {
	if p.Key == "" {
		return eris.New("channel key is empty")
	}
	if p.ChatID == "" {
		return eris.Errorf("channel %s: chat_id is empty", p.Key)
	}
	if p.MinDiscountPercent < 0 || p.MinDiscountPercent > 100 {
		return eris.Errorf("channel %s: min_discount_percent %d out of range", p.Key, p.MinDiscountPercent)
	}
	if p.MinRating < 0 || p.MinRating > 5 {
		return eris.Errorf("channel %s: min_rating %.1f out of range", p.Key, p.MinRating)
	}
	if p.MinReviewCount < 0 {
		return eris.Errorf("channel %s: min_review_count is negative", p.Key)
	}
	if p.MinPriceMinor < 0 {
		return eris.Errorf("channel %s: min_price_minor is negative", p.Key)
	}
	if p.MaxPriceMinor > 0 && p.MaxPriceMinor < p.MinPriceMinor {
		return eris.Errorf("channel %s: max_price_minor below min_price_minor", p.Key)
	}
	return nil
}
