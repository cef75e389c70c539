// Package model defines the records that flow through a discovery run.
package model

// Direction is the movement of search interest for a trend topic.
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionStable  Direction = "stable"
	DirectionFalling Direction = "falling"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionRising, DirectionStable, DirectionFalling:
		return true
	default:
		return false
	}
}

// SaturationTier is the categorical competition level on the marketplace.
type SaturationTier string

const (
	SaturationVeryLow  SaturationTier = "very_low"
	SaturationLow      SaturationTier = "low"
	SaturationMedium   SaturationTier = "medium"
	SaturationHigh     SaturationTier = "high"
	SaturationVeryHigh SaturationTier = "very_high"
)

// Niche is the relationship of a derived keyword to the topic it was
// expanded from.
type Niche string

const (
	NicheNone          Niche = "none"
	NicheAccessory     Niche = "accessory"
	NicheAlternative   Niche = "alternative"
	NicheComplementary Niche = "complementary"
)

// Origin records how a candidate entered the run.
type Origin string

const (
	// OriginTrend candidates were discovered from a trend topic.
	OriginTrend Origin = "trend"
	// OriginSeed candidates came from seed keywords searched without trend data.
	OriginSeed Origin = "seed"
	// OriginManual candidates were supplied by the caller as a product list.
	OriginManual Origin = "manual"
)

// TrendSignal is the trend data attached to a candidate.
type TrendSignal struct {
	Keyword   string    `json:"keyword"`
	Direction Direction `json:"direction"`
	Magnitude float64   `json:"magnitude"`
}

// MarketplaceSignal summarizes the marketplace search results for a candidate.
type MarketplaceSignal struct {
	ResultCount    int            `json:"result_count"`
	AvgReviewCount float64        `json:"avg_review_count"`
	MaxReviewCount int            `json:"max_review_count"`
	AvgRating      float64        `json:"avg_rating"`
	SaturationTier SaturationTier `json:"saturation_tier"`
}

// SentimentSignal summarizes social discussion about a candidate.
type SentimentSignal struct {
	Polarity      float64 `json:"polarity"`
	PostCount     int     `json:"post_count"`
	PositiveRatio float64 `json:"positive_ratio"`
	PositivePosts int     `json:"positive_posts"`
	NegativePosts int     `json:"negative_posts"`
}

// NegativeDominant reports whether negative posts outnumber positive ones.
// When per-label counts are unavailable the positive ratio decides.
func (s SentimentSignal) NegativeDominant() bool {
	if s.PositivePosts > 0 || s.NegativePosts > 0 {
		return s.NegativePosts > s.PositivePosts
	}
	return s.PostCount > 0 && s.PositiveRatio < 0.5
}

// Candidate is one product under opportunity evaluation. Optional signals
// are nil until the stage that produces them succeeds.
type Candidate struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	SourceCategory string             `json:"source_category"`
	Keyword        string             `json:"keyword,omitempty"`
	Origin         Origin             `json:"origin"`
	Niche          Niche              `json:"niche"`
	Trend          *TrendSignal       `json:"trend,omitempty"`
	Marketplace    *MarketplaceSignal `json:"marketplace,omitempty"`
	Sentiment      *SentimentSignal   `json:"sentiment,omitempty"`
	Score          *float64           `json:"score,omitempty"`
}

// HasSignals reports whether any optional signal is present.
func (c Candidate) HasSignals() bool {
	return c.Trend != nil || c.Marketplace != nil || c.Sentiment != nil
}

// RisingTrend reports whether the candidate carries a rising trend signal.
func (c Candidate) RisingTrend() bool {
	return c.Trend != nil && c.Trend.Direction == DirectionRising
}

// ScoreValue returns the computed score, or 0 before scoring.
func (c Candidate) ScoreValue() float64 {
	if c.Score == nil {
		return 0
	}
	return *c.Score
}

// Clone returns a deep copy so snapshots never alias the aggregator's records.
func (c Candidate) Clone() Candidate {
	out := c
	if c.Trend != nil {
		t := *c.Trend
		out.Trend = &t
	}
	if c.Marketplace != nil {
		m := *c.Marketplace
		out.Marketplace = &m
	}
	if c.Sentiment != nil {
		s := *c.Sentiment
		out.Sentiment = &s
	}
	if c.Score != nil {
		v := *c.Score
		out.Score = &v
	}
	return out
}

// TrendTopic is one typed record returned by the trends source.
type TrendTopic struct {
	Seed      string    `json:"seed" yaml:"seed"`
	Keyword   string    `json:"keyword" yaml:"keyword"`
	Direction Direction `json:"direction" yaml:"direction"`
	Magnitude float64   `json:"magnitude" yaml:"magnitude"`
}

// Listing is one product returned by a marketplace search.
type Listing struct {
	Name        string  `json:"name" yaml:"name"`
	SKU         string  `json:"sku,omitempty" yaml:"sku"`
	ReviewCount int     `json:"review_count" yaml:"review_count"`
	Rating      float64 `json:"rating" yaml:"rating"`
}
