package scorer

import (
	"math"
	"sort"

	"github.com/sells-group/niche-scout/internal/config"
	"github.com/sells-group/niche-scout/internal/model"
)

// Breakdown holds each component of an opportunity score.
type Breakdown struct {
	Base        float64 `json:"base"`
	Competition float64 `json:"competition"`
	Sentiment   float64 `json:"sentiment"`
	Niche       float64 `json:"niche"`
	Validation  float64 `json:"validation"`
	Adjustment  float64 `json:"adjustment"`
	Total       float64 `json:"total"`
}

// Scorer computes opportunity scores. It holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	cfg config.ScorerConfig
}

// New creates a Scorer with the given point values.
func New(cfg config.ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns the candidate's opportunity score in [0, 100].
func (s *Scorer) Score(c model.Candidate) float64 {
	return s.Breakdown(c).Total
}

// Breakdown scores c and returns every component. A candidate without any
// signal scores its base alone.
func (s *Scorer) Breakdown(c model.Candidate) Breakdown {
	b := Breakdown{Base: BaseScore(c, s.cfg)}
	if !c.HasSignals() {
		b.Total = clamp(b.Base, 0, MaxScore)
		return b
	}

	b.Competition = CompetitionScore(c.Marketplace, s.cfg)
	b.Sentiment = SentimentScore(c.Sentiment, s.cfg)
	b.Niche = NicheBonus(c.Niche, s.cfg)
	b.Validation = ValidationBonus(c, s.cfg)
	b.Adjustment = Adjustment(c.Sentiment, s.cfg)

	total := b.Base + b.Competition + b.Sentiment + b.Niche + b.Validation + b.Adjustment
	b.Total = round2(clamp(total, 0, MaxScore))
	return b
}

// ScoreAll sets Score on a copy of every candidate and returns them ranked.
func (s *Scorer) ScoreAll(cands []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, len(cands))
	for i, c := range cands {
		out[i] = c.Clone()
		v := s.Score(c)
		out[i].Score = &v
	}
	Rank(out)
	return out
}

// Rank sorts candidates by score descending. Ties break on name, then id,
// so equal inputs always produce the same order.
func Rank(cands []model.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.ScoreValue() != b.ScoreValue() {
			return a.ScoreValue() > b.ScoreValue()
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// BaseScore awards points by how the candidate entered the run. Any
// candidate backed by a rising trend gets the rising base.
func BaseScore(c model.Candidate, cfg config.ScorerConfig) float64 {
	if c.RisingTrend() {
		return cfg.RisingBase
	}
	switch c.Origin {
	case model.OriginTrend:
		return cfg.TrendBase
	case model.OriginSeed:
		return cfg.SeedBase
	default:
		return cfg.ManualBase
	}
}

// CompetitionScore is inverse to the saturation tier. An absent signal
// scores the neutral midpoint.
func CompetitionScore(m *model.MarketplaceSignal, cfg config.ScorerConfig) float64 {
	if m == nil {
		return cfg.CompetitionNeutral
	}
	switch m.SaturationTier {
	case model.SaturationVeryLow:
		return cfg.CompetitionVeryLow
	case model.SaturationLow:
		return cfg.CompetitionLow
	case model.SaturationMedium:
		return cfg.CompetitionMedium
	case model.SaturationHigh:
		return cfg.CompetitionHigh
	case model.SaturationVeryHigh:
		return cfg.CompetitionVeryHigh
	default:
		return cfg.CompetitionNeutral
	}
}

// SentimentScore maps polarity linearly onto [0, SentimentPolarityMax] and
// adds a volume component that grows with log10 of the post count and
// saturates at SentimentVolumeMax.
func SentimentScore(s *model.SentimentSignal, cfg config.ScorerConfig) float64 {
	if s == nil || s.PostCount <= 0 {
		return 0
	}
	polarity := (clamp(s.Polarity, -1, 1) + 1) / 2 * cfg.SentimentPolarityMax
	volume := math.Min(cfg.SentimentVolumeMax, math.Log10(float64(s.PostCount)+1)*cfg.SentimentVolumeMax/2)
	return polarity + volume
}

// NicheBonus rewards derived niches: accessory > alternative > complementary.
func NicheBonus(n model.Niche, cfg config.ScorerConfig) float64 {
	switch n {
	case model.NicheAccessory:
		return cfg.NicheAccessory
	case model.NicheAlternative:
		return cfg.NicheAlternative
	case model.NicheComplementary:
		return cfg.NicheComplementary
	default:
		return 0
	}
}

// ValidationBonus rewards corroboration: discussion posts, marketplace
// reviews and a marketplace rating each add their points.
func ValidationBonus(c model.Candidate, cfg config.ScorerConfig) float64 {
	var v float64
	if c.Sentiment != nil && c.Sentiment.PostCount > 0 {
		v += cfg.ValidationPosts
	}
	if c.Marketplace != nil {
		if c.Marketplace.MaxReviewCount > 0 || c.Marketplace.AvgReviewCount > 0 {
			v += cfg.ValidationReviews
		}
		if c.Marketplace.AvgRating > 0 {
			v += cfg.ValidationRating
		}
	}
	return math.Min(v, MaxValidation)
}

// Adjustment applies the positive-ratio bonus and the penalty for
// discussion where negative posts outnumber positive ones.
func Adjustment(s *model.SentimentSignal, cfg config.ScorerConfig) float64 {
	if s == nil || s.PostCount <= 0 {
		return 0
	}
	var adj float64
	if s.PositiveRatio > cfg.PositiveRatioThreshold {
		adj += cfg.PositiveBonus
	}
	if s.NegativeDominant() {
		adj -= cfg.NegativePenalty
	}
	return adj
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
