package sentiment

import (
	"math"

	"github.com/sells-group/niche-scout/internal/model"
)

// Label thresholds on a post's polarity.
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// Post is one piece of discussion text with its community weight.
type Post struct {
	Text    string
	Upvotes int
}

// Label classifies a polarity as "positive", "negative", or "neutral".
func Label(polarity float64) string {
	switch {
	case polarity > PositiveThreshold:
		return "positive"
	case polarity < NegativeThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

// Aggregate scores each post and summarizes them. Polarity is weighted by
// upvotes (at least 1 per post). A nil scorer uses ScoreText.
func Aggregate(posts []Post, score Scorer) model.SentimentSignal {
	if score == nil {
		score = ScoreText
	}
	if len(posts) == 0 {
		return model.SentimentSignal{}
	}

	var (
		weighted, totalWeight float64
		pos, neg              int
	)
	for _, p := range posts {
		polarity := clamp(score(p.Text), -1, 1)
		w := float64(max(p.Upvotes, 1))
		weighted += polarity * w
		totalWeight += w

		switch Label(polarity) {
		case "positive":
			pos++
		case "negative":
			neg++
		}
	}

	return model.SentimentSignal{
		Polarity:      clamp(weighted/totalWeight, -1, 1),
		PostCount:     len(posts),
		PositiveRatio: float64(pos) / float64(max(pos+neg, 1)),
		PositivePosts: pos,
		NegativePosts: neg,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
