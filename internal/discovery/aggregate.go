package discovery

import (
	"sync"

	"github.com/sells-group/niche-scout/internal/model"
)

// Update is a partial candidate record. Zero fields leave the stored
// candidate untouched.
type Update struct {
	Name           string
	SourceCategory string
	Keyword        string
	Origin         model.Origin
	Niche          model.Niche
	Trend          *model.TrendSignal
	Marketplace    *model.MarketplaceSignal
	Sentiment      *model.SentimentSignal
}

// Aggregator merges per-source results into one candidate per product
// identity. Safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	byID  map[string]*model.Candidate
	order []string
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byID: make(map[string]*model.Candidate)}
}

// Upsert merges u into the candidate identified by NormalizeID(u.Name),
// creating it if absent, and returns the id. Names that normalize to
// nothing are ignored and return "".
//
// Identity fields (name, category, keyword, origin, niche) keep their first
// non-empty value. Signals overwrite the previous value for the same field
// and are never cleared by a nil.
func (a *Aggregator) Upsert(u Update) string {
	id := NormalizeID(u.Name)
	if id == "" {
		return ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.byID[id]
	if !ok {
		c = &model.Candidate{ID: id, Name: NormalizeName(u.Name), Niche: model.NicheNone}
		a.byID[id] = c
		a.order = append(a.order, id)
	}

	if c.SourceCategory == "" {
		c.SourceCategory = u.SourceCategory
	}
	if c.Keyword == "" {
		c.Keyword = u.Keyword
	}
	if c.Origin == "" {
		c.Origin = u.Origin
	}
	if (c.Niche == "" || c.Niche == model.NicheNone) && u.Niche != "" {
		c.Niche = u.Niche
	}

	if u.Trend != nil {
		t := *u.Trend
		c.Trend = &t
	}
	if u.Marketplace != nil {
		m := *u.Marketplace
		c.Marketplace = &m
	}
	if u.Sentiment != nil {
		s := *u.Sentiment
		c.Sentiment = &s
	}
	return id
}

// Get returns a copy of the candidate with the given id.
func (a *Aggregator) Get(id string) (model.Candidate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.byID[id]
	if !ok {
		return model.Candidate{}, false
	}
	return c.Clone(), true
}

// Len returns the number of candidates.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Truncate keeps the first n candidates in insertion order and returns how
// many were dropped.
func (a *Aggregator) Truncate(n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 0 || len(a.order) <= n {
		return 0
	}
	dropped := a.order[n:]
	for _, id := range dropped {
		delete(a.byID, id)
	}
	a.order = a.order[:n:n]
	return len(dropped)
}

// Finalize snapshots every candidate in insertion order. The snapshot does
// not alias the aggregator's records.
func (a *Aggregator) Finalize() []model.Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Candidate, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id].Clone())
	}
	return out
}
