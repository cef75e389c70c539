package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/pkg/trends"
)

// Interest change thresholds for DirectionFromSeries.
const (
	risingFactor  = 1.2
	fallingFactor = 0.8
)

// Trends adapts a trends.Client to TrendsProvider.
type Trends struct {
	client trends.Client
	guard  *Guard
}

// NewTrends creates a trends provider.
func NewTrends(client trends.Client, guard *Guard) *Trends {
	return &Trends{client: client, guard: guard}
}

// Fetch returns the rising and top related queries for seeds. Rising
// queries carry their growth as magnitude (250% growth -> 2.5); top queries
// are stable with their relative volume (0-100) scaled to [0, 1].
func (t *Trends) Fetch(ctx context.Context, seeds []string, opts FetchOptions) ([]model.TrendTopic, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if len(seeds) > trends.MaxKeywords {
		return nil, eris.Errorf("provider: trends accepts at most %d seeds, got %d", trends.MaxKeywords, len(seeds))
	}

	resp, err := Call(ctx, t.guard, SourceTrends, opts.attempt(), func(ctx context.Context) (*trends.RelatedResponse, error) {
		resp, err := t.client.RelatedQueries(ctx, seeds)
		if err != nil {
			return nil, err
		}
		if err := validateRelated(resp, seeds); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	var topics []model.TrendTopic
	for _, r := range resp.Results {
		for _, q := range r.Rising {
			if kw := strings.TrimSpace(q.Query); kw != "" {
				topics = append(topics, model.TrendTopic{Seed: r.Keyword, Keyword: kw, Direction: model.DirectionRising, Magnitude: q.Value / 100})
			}
		}
		for _, q := range r.Top {
			if kw := strings.TrimSpace(q.Query); kw != "" {
				topics = append(topics, model.TrendTopic{Seed: r.Keyword, Keyword: kw, Direction: model.DirectionStable, Magnitude: q.Value / 100})
			}
		}
	}
	return topics, nil
}

// Check classifies each keyword's own interest series.
func (t *Trends) Check(ctx context.Context, keywords []string, opts FetchOptions) ([]model.TrendTopic, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if len(keywords) > trends.MaxKeywords {
		return nil, eris.Errorf("provider: trends accepts at most %d keywords, got %d", trends.MaxKeywords, len(keywords))
	}

	resp, err := Call(ctx, t.guard, SourceTrends, opts.attempt(), func(ctx context.Context) (*trends.InterestResponse, error) {
		resp, err := t.client.InterestOverTime(ctx, keywords)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, resilience.ParseError(nil, "trends: empty interest response")
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	topics := make([]model.TrendTopic, 0, len(keywords))
	for _, kw := range keywords {
		series := resp.Series(kw)
		if len(series) == 0 {
			continue
		}
		dir, mag := DirectionFromSeries(series)
		topics = append(topics, model.TrendTopic{Seed: kw, Keyword: kw, Direction: dir, Magnitude: mag})
	}
	return topics, nil
}

func validateRelated(resp *trends.RelatedResponse, seeds []string) error {
	if resp == nil {
		return resilience.ParseError(nil, "trends: empty related response")
	}
	requested := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		requested[strings.ToLower(s)] = true
	}
	for _, r := range resp.Results {
		if !requested[strings.ToLower(r.Keyword)] {
			return resilience.ParseError(nil, "trends: result for unrequested keyword %q", r.Keyword)
		}
	}
	return nil
}

// DirectionFromSeries compares the mean of the later half of an interest
// series against the earlier half. Magnitude is the relative change.
func DirectionFromSeries(values []float64) (model.Direction, float64) {
	if len(values) < 2 {
		return model.DirectionStable, 0
	}
	mid := len(values) / 2
	early := mean(values[:mid])
	recent := mean(values[mid:])
	change := (recent - early) / max(early, 1)

	switch {
	case recent > early*risingFactor:
		return model.DirectionRising, change
	case recent < early*fallingFactor:
		return model.DirectionFalling, change
	default:
		return model.DirectionStable, change
	}
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
