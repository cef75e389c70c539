package resilience

import (
	"sync"
	"time"
)

// DLQEntry records a sub-task whose signal was left absent after its
// attempts were exhausted. Entries live only for the run that produced them.
type DLQEntry struct {
	Stage     string    `json:"stage"`
	Source    string    `json:"source"`
	Key       string    `json:"key"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// Error types recorded on DLQ entries.
const (
	ErrorTypeCircuitOpen = "circuit_open"
	ErrorTypeRateLimited = "rate_limited"
	ErrorTypeBlocked     = "blocked"
	ErrorTypeTransient   = "transient"
	ErrorTypePermanent   = "permanent"
)

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	Stage     string `json:"stage,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// DLQ collects failed sub-tasks. Safe for concurrent use.
type DLQ struct {
	mu      sync.Mutex
	entries []DLQEntry
	nowFunc func() time.Time
}

// NewDLQ creates an empty queue.
func NewDLQ() *DLQ {
	return &DLQ{nowFunc: time.Now}
}

// Add records a failure.
func (q *DLQ) Add(stage, source, key string, attempts int, err error) {
	if err == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, DLQEntry{
		Stage:     stage,
		Source:    source,
		Key:       key,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		Attempts:  attempts,
		FailedAt:  q.nowFunc(),
	})
}

// List returns entries matching f in insertion order.
func (q *DLQ) List(f DLQFilter) []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []DLQEntry
	for _, e := range q.entries {
		if f.Stage != "" && e.Stage != f.Stage {
			continue
		}
		if f.ErrorType != "" && e.ErrorType != f.ErrorType {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of entries.
func (q *DLQ) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ClassifyError names the error category used in DLQ entries.
func ClassifyError(err error) string {
	switch {
	case IsCircuitOpen(err):
		return ErrorTypeCircuitOpen
	case IsRateLimited(err):
		return ErrorTypeRateLimited
	case IsBlocked(err):
		return ErrorTypeBlocked
	case IsTransient(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
