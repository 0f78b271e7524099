package model

// SourceMode identifies which upstream feed a candidate came from.
type SourceMode string

const (
	ModeFlash  SourceMode = "flash"
	ModeBrowse SourceMode = "browse"
)

// Other returns the fallback feed for a primary mode.
func (m SourceMode) Other() SourceMode {
	if m == ModeFlash {
		return ModeBrowse
	}
	return ModeFlash
}

// Candidate is the canonical deal shape every source mode converges on.
// Candidates are ephemeral: produced, filtered, and discarded within one
// publication cycle. Only the product ID outlives the cycle, in the ledger.
type Candidate struct {
	ProductID           string  `json:"product_id"`
	Title               string  `json:"title"`
	CurrentPriceMinor   int64   `json:"current_price_minor"`
	ReferencePriceMinor int64   `json:"reference_price_minor"`
	DiscountPercent     int     `json:"discount_percent"`
	Rating              float64 `json:"rating"`
	ReviewCount         int     `json:"review_count"`
	ImageRef            string  `json:"image_ref,omitempty"`
	IsFlash             bool    `json:"is_flash"`
	CategoryID          int64   `json:"category_id,omitempty"`
}

// CurrentPriceMajor returns the current price in major currency units.
func (c *Candidate) CurrentPriceMajor() float64 {
	return float64(c.CurrentPriceMinor) / 100
}

// ReferencePriceMajor returns the reference ("was") price in major units.
func (c *Candidate) ReferencePriceMajor() float64 {
	return float64(c.ReferencePriceMinor) / 100
}
