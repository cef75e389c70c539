// Package workerpool runs independent units of work with a cap on how many
// are in flight at once.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxInFlight is used when New is given a non-positive size.
const DefaultMaxInFlight = 5

// ErrDropped marks a task that was cancelled before it started.
var ErrDropped = eris.New("workerpool: task dropped before start")

// Task is one unit of work. It should return promptly once ctx is done.
type Task[T any] func(ctx context.Context) (T, error)

// Result is the outcome of the task submitted at Index.
type Result[T any] struct {
	Index   int
	Value   T
	Err     error
	Started bool
}

// OK reports whether the task ran and succeeded.
func (r Result[T]) OK() bool {
	return r.Started && r.Err == nil
}

// Pool caps concurrently running tasks. A Pool may serve several Submit
// calls, each bounded independently by the same cap.
type Pool struct {
	size int

	mu        sync.Mutex
	nextID    uint64
	active    map[uint64]context.CancelFunc
	cancelled bool
}

// New creates a pool that runs at most maxInFlight tasks at once.
func New(maxInFlight int) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Pool{size: maxInFlight, active: make(map[uint64]context.CancelFunc)}
}

// Size returns the in-flight cap.
func (p *Pool) Size() int {
	return p.size
}

// Cancel stops every running Submit: in-flight tasks see their context
// cancelled and queued tasks are dropped. The pool stays cancelled; later
// submissions drop all their tasks.
func (p *Pool) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	for _, cancel := range p.active {
		cancel()
	}
}

func (p *Pool) register(cancel context.CancelFunc) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return 0, false
	}
	p.nextID++
	p.active[p.nextID] = cancel
	return p.nextID, true
}

func (p *Pool) unregister(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
}

// Submit runs tasks on the pool and blocks until every task has finished or
// been dropped. results[i] always belongs to tasks[i]. A failing task never
// cancels its siblings.
func Submit[T any](ctx context.Context, p *Pool, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	for i := range results {
		results[i].Index = i
	}
	if len(tasks) == 0 {
		return results
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id, ok := p.register(cancel)
	if !ok {
		cancel()
	} else {
		defer p.unregister(id)
	}

	var g errgroup.Group
	g.SetLimit(p.size)

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			results[i].Err = dropped(ctx)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i].Err = dropped(ctx)
				return nil
			}
			results[i].Started = true
			results[i].Value, results[i].Err = run(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func run[T any](ctx context.Context, task Task[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("workerpool: task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func dropped(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrDropped, context.Cause(ctx))
}
