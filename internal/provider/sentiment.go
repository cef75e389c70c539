package provider

import (
	"context"
	"strings"

	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/internal/sentiment"
	"github.com/sells-group/niche-scout/pkg/social"
)

// MinPosts is the post count below which the fallback query is searched.
const MinPosts = 5

// Sentiment adapts a social.Client to SentimentProvider.
type Sentiment struct {
	client social.Client
	guard  *Guard
	score  sentiment.Scorer
	limit  int
}

// SentimentOption configures a Sentiment provider.
type SentimentOption func(*Sentiment)

// WithScorer replaces the default lexicon scorer.
func WithScorer(s sentiment.Scorer) SentimentOption {
	return func(p *Sentiment) {
		if s != nil {
			p.score = s
		}
	}
}

// WithPostLimit sets how many posts each search requests. Default: 25.
func WithPostLimit(n int) SentimentOption {
	return func(p *Sentiment) {
		if n > 0 {
			p.limit = n
		}
	}
}

// NewSentiment creates a sentiment provider.
func NewSentiment(client social.Client, guard *Guard, opts ...SentimentOption) *Sentiment {
	s := &Sentiment{client: client, guard: guard, score: sentiment.ScoreText, limit: 25}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fetch searches discussion about productName and summarizes it. When fewer
// than MinPosts come back and opts.Fallback differs, the fallback query is
// searched too and the posts are merged. A failed fallback keeps the primary
// result.
func (s *Sentiment) Fetch(ctx context.Context, productName string, opts FetchOptions) (model.SentimentSignal, error) {
	posts, err := s.search(ctx, productName, opts)
	if err != nil {
		return model.SentimentSignal{}, err
	}

	fallback := strings.TrimSpace(opts.Fallback)
	if len(posts) < MinPosts && fallback != "" && !strings.EqualFold(fallback, strings.TrimSpace(productName)) {
		more, err := s.search(ctx, fallback, opts)
		if err != nil {
			if ctx.Err() != nil {
				return model.SentimentSignal{}, ctx.Err()
			}
		} else {
			posts = mergePosts(posts, more)
		}
	}

	in := make([]sentiment.Post, 0, len(posts))
	for _, p := range posts {
		in = append(in, sentiment.Post{Text: p.Title + " " + p.Selftext, Upvotes: p.Score})
	}
	return sentiment.Aggregate(in, s.score), nil
}

func (s *Sentiment) search(ctx context.Context, query string, opts FetchOptions) ([]social.Post, error) {
	return Call(ctx, s.guard, SourceSentiment, opts.attempt(), func(ctx context.Context) ([]social.Post, error) {
		resp, err := s.client.Search(ctx, query, social.WithLimit(s.limit))
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, resilience.ParseError(nil, "social: empty response for %q", query)
		}
		return resp.Posts(), nil
	})
}

func mergePosts(a, b []social.Post) []social.Post {
	seen := make(map[string]bool, len(a))
	for _, p := range a {
		if p.ID != "" {
			seen[p.ID] = true
		}
	}
	for _, p := range b {
		if p.ID != "" && seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		a = append(a, p)
	}
	return a
}
