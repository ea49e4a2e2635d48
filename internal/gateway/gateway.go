package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/opla/internal/types"
)

// ErrBusy is returned when a conversation already has a run in flight.
var ErrBusy = errors.New("conversation is busy")

// Gateway submits runs to the queue and tracks the one in flight for each
// conversation so it can be cancelled.
type Gateway struct {
	Queue *Queue
	retry *RetryPolicy

	mu     sync.Mutex
	active map[types.ConversationID]*Run
}

// New creates a Gateway with the given concurrency limit for simultaneous
// run processing.
func New(maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		Queue:  NewQueue(concurrency),
		retry:  DefaultRetryPolicy(),
		active: make(map[types.ConversationID]*Run),
	}
}

// Start starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop cancels every active run, stops the queue, and waits for
// outstanding work to finish.
func (g *Gateway) Stop() {
	g.mu.Lock()
	for _, run := range g.active {
		run.Cancel()
	}
	g.mu.Unlock()
	g.Queue.Stop()
}

// RetryPolicy returns the policy processors use around provider calls.
func (g *Gateway) RetryPolicy() *RetryPolicy {
	return g.retry
}

// SetProcessor sets the function invoked for each run. The conversation
// is released once it returns.
func (g *Gateway) SetProcessor(fn func(*Run) error) {
	g.Queue.SetProcessor(fn)
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnUpdate sets a callback invoked with the message list after each
// change made by the run.
func WithOnUpdate(fn func([]types.Message)) RunOption {
	return func(r *Run) { r.OnUpdate = fn }
}

// Submit enqueues run. Only one run per conversation may be in flight.
func (g *Gateway) Submit(run *Run, opts ...RunOption) error {
	for _, opt := range opts {
		opt(run)
	}

	g.mu.Lock()
	if cur, ok := g.active[run.ConversationID]; ok {
		select {
		case <-cur.Done():
		default:
			g.mu.Unlock()
			return fmt.Errorf("submit run: %w", ErrBusy)
		}
	}
	g.active[run.ConversationID] = run
	g.mu.Unlock()

	if err := g.Queue.Enqueue(run); err != nil {
		g.release(run)
		return fmt.Errorf("submit run: %w", err)
	}
	go func() {
		<-run.Done()
		g.release(run)
	}()
	return nil
}

func (g *Gateway) release(run *Run) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[run.ConversationID] == run {
		delete(g.active, run.ConversationID)
	}
}

// Active returns the run in flight for a conversation.
func (g *Gateway) Active(id types.ConversationID) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.active[id]
	return run, ok
}

// Cancel cancels the run in flight for a conversation. It reports whether
// there was one.
func (g *Gateway) Cancel(id types.ConversationID) bool {
	run, ok := g.Active(id)
	if ok {
		run.Cancel()
	}
	return ok
}
