package keepa

// Amazon locale identifiers used by the API.
const (
	DomainIT = 8 // amazon.it
)

// Lightning deal states that can still be bought.
const (
	DealStateAvailable = "AVAILABLE"
	DealStateWaitlist  = "WAITLIST"
)

// Indices into ProductDetail.CSV. Each series alternates keepa-minute
// timestamps with values; -1 marks a gap.
const (
	SeriesAmazon  = 0  // Amazon price, minor units
	SeriesRating  = 16 // star rating in tenths
	SeriesReviews = 17 // review count
)

// FlashDeal is one entry of the GET /lightningdeal response. Prices are in
// currency minor units, ratings in tenths of a star.
type FlashDeal struct {
	ASIN         string `json:"asin"`
	Title        string `json:"title"`
	Image        string `json:"image"`
	DealPrice    int64  `json:"dealPrice"`
	CurrentPrice int64  `json:"currentPrice"`
	Rating       int    `json:"rating"`
	TotalReviews int    `json:"totalReviews"`
	PercentOff   int    `json:"percentOff"`
	DealState    string `json:"dealState"`
}

// BrowseDeal is one entry of the POST /deal response. Current holds price
// slots in minor units: index 0 is the price now, higher slots carry
// reference prices depending on the query.
type BrowseDeal struct {
	ASIN        string  `json:"asin"`
	Title       string  `json:"title"`
	ImagesCSV   string  `json:"imagesCSV"`
	Current     []int64 `json:"current"`
	Avg90       []int64 `json:"avg90"`
	Rating      int     `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
	RootCat     int64   `json:"rootCat"`
}

// ProductDetail is one entry of the GET /product response. CSV holds the
// price/rating/review history series (see the Series constants).
type ProductDetail struct {
	ASIN         string    `json:"asin"`
	Title        string    `json:"title"`
	ImagesCSV    string    `json:"imagesCSV"`
	CSV          [][]int64 `json:"csv"`
	RootCategory int64     `json:"rootCategory"`
}

// TokenStatus is the GET /token response: the remaining request budget and
// when it refills. RefillIn is in milliseconds.
type TokenStatus struct {
	TokensLeft int   `json:"tokensLeft"`
	RefillIn   int64 `json:"refillIn"`
	RefillRate int   `json:"refillRate"`
}

// DealQuery is the JSON body of POST /deal.
type DealQuery struct {
	DomainID            int     `json:"domainId"`
	Page                int     `json:"page"`
	ExcludeCategories   []int64 `json:"excludeCategories"`
	IncludeCategories   []int64 `json:"includeCategories"`
	PriceTypes          []int   `json:"priceTypes"`
	DeltaRange          []int   `json:"deltaRange"`
	DeltaPercentRange   []int   `json:"deltaPercentRange"`
	SalesRankRange      []int   `json:"salesRankRange"`
	CurrentRange        []int   `json:"currentRange"`
	MinRating           int     `json:"minRating"`
	IsLowest            bool    `json:"isLowest"`
	IsLowest90          bool    `json:"isLowest90"`
	IsLowestOffer       bool    `json:"isLowestOffer"`
	IsOutOfStock        bool    `json:"isOutOfStock"`
	TitleSearch         string  `json:"titleSearch,omitempty"`
	IsRangeEnabled      bool    `json:"isRangeEnabled"`
	IsFilterEnabled     bool    `json:"isFilterEnabled"`
	FilterErotic        bool    `json:"filterErotic"`
	SingleVariation     bool    `json:"singleVariation"`
	HasReviews          bool    `json:"hasReviews"`
	SortType            int     `json:"sortType"`
	DateRange           int     `json:"dateRange"`
	WarehouseConditions []int   `json:"warehouseConditions"`
}

// DefaultDealQuery returns a browse query with the baseline filters: Amazon
// price type, 5-1000 EUR price window, sales rank under 50k, 3.5+ stars,
// reviewed single-variation listings, sorted by deal age over the last day.
// Callers narrow it further from channel thresholds.
func DefaultDealQuery(domainID int, categories []int64, minDiscountPercent int) DealQuery {
	return DealQuery{
		DomainID:            domainID,
		Page:                0,
		ExcludeCategories:   []int64{},
		IncludeCategories:   categories,
		PriceTypes:          []int{0},
		DeltaRange:          []int{500, 100000},
		DeltaPercentRange:   []int{minDiscountPercent, 100},
		SalesRankRange:      []int{0, 50000},
		CurrentRange:        []int{500, 100000},
		MinRating:           35,
		IsRangeEnabled:      true,
		FilterErotic:        true,
		SingleVariation:     true,
		HasReviews:          true,
		SortType:            4,
		DateRange:           1,
		WarehouseConditions: []int{1, 2, 3, 4, 5},
	}
}
