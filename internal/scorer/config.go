// Package scorer computes the opportunity score of a discovered product.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/niche-scout/internal/config"
)

// Sub-score ceilings.
const (
	MaxCompetition = 25
	MaxSentiment   = 25
	MaxValidation  = 10
	MaxScore       = 100
)

// DefaultScorerConfig returns a config.ScorerConfig with the default point
// values. Keep in sync with the viper defaults in internal/config.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		// Base points by origin.
		RisingBase: 30,
		TrendBase:  20,
		SeedBase:   15,
		ManualBase: 10,

		// Competition, inverse to saturation.
		CompetitionVeryLow:  25,
		CompetitionLow:      20,
		CompetitionMedium:   12.5,
		CompetitionHigh:     5,
		CompetitionVeryHigh: 1,
		CompetitionNeutral:  12.5,

		SentimentPolarityMax: 20,
		SentimentVolumeMax:   5,

		NicheAccessory:     10,
		NicheAlternative:   8,
		NicheComplementary: 6,

		ValidationPosts:   4,
		ValidationReviews: 3,
		ValidationRating:  3,

		PositiveRatioThreshold: 0.75,
		PositiveBonus:          5,
		NegativePenalty:        15,
	}
}

// ValidateConfig checks that a ScorerConfig keeps every sub-score within
// its documented range.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	type field struct {
		name  string
		value float64
	}
	bases := []field{
		{"rising_base", c.RisingBase},
		{"trend_base", c.TrendBase},
		{"seed_base", c.SeedBase},
		{"manual_base", c.ManualBase},
	}
	points := append(append([]field(nil), bases...),
		field{"competition_very_low", c.CompetitionVeryLow},
		field{"competition_low", c.CompetitionLow},
		field{"competition_medium", c.CompetitionMedium},
		field{"competition_high", c.CompetitionHigh},
		field{"competition_very_high", c.CompetitionVeryHigh},
		field{"competition_neutral", c.CompetitionNeutral},
		field{"niche_accessory", c.NicheAccessory},
		field{"niche_alternative", c.NicheAlternative},
		field{"niche_complementary", c.NicheComplementary},
		field{"validation_posts", c.ValidationPosts},
		field{"validation_reviews", c.ValidationReviews},
		field{"validation_rating", c.ValidationRating},
		field{"positive_bonus", c.PositiveBonus},
		field{"negative_penalty", c.NegativePenalty},
	)
	for _, f := range points {
		if f.value < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", f.name))
		}
	}

	for _, f := range bases {
		if f.value > MaxScore {
			errs = append(errs, fmt.Sprintf("%s must be <= %d", f.name, MaxScore))
		}
	}

	tiers := []float64{c.CompetitionVeryLow, c.CompetitionLow, c.CompetitionMedium, c.CompetitionHigh, c.CompetitionVeryHigh, c.CompetitionNeutral}
	for _, v := range tiers {
		if v > MaxCompetition {
			errs = append(errs, fmt.Sprintf("competition points must be <= %d", MaxCompetition))
			break
		}
	}
	for i := 1; i < 5; i++ {
		if tiers[i] > tiers[i-1] {
			errs = append(errs, "competition points must not increase with saturation")
			break
		}
	}

	if c.SentimentPolarityMax < 0 || c.SentimentVolumeMax < 0 {
		errs = append(errs, "sentiment maxima must be >= 0")
	}
	if c.SentimentPolarityMax+c.SentimentVolumeMax > MaxSentiment {
		errs = append(errs, fmt.Sprintf("sentiment_polarity_max + sentiment_volume_max must be <= %d", MaxSentiment))
	}
	if v := c.ValidationPosts + c.ValidationReviews + c.ValidationRating; v > MaxValidation {
		errs = append(errs, fmt.Sprintf("validation points must sum to <= %d, got %.1f", MaxValidation, v))
	}
	if c.PositiveRatioThreshold < 0 || c.PositiveRatioThreshold > 1 {
		errs = append(errs, "positive_ratio_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
