package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/opla/internal/types"
)

// Queue manages per-conversation lanes with a global concurrency semaphore.
// Each conversation gets its own FIFO channel (lane) so that runs within a
// conversation are processed sequentially, while the semaphore limits the
// total number of concurrent run processors across all conversations.
type Queue struct {
	lanes     map[types.ConversationID]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all conversation lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.ConversationID]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish. Runs still queued are handed to the processor with
// a cancelled context.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to the conversation's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.stopped {
		return fmt.Errorf("queue not running")
	}

	lane, exists := q.lanes[run.ConversationID]
	if !exists {
		lane = make(chan *Run, 100)
		q.lanes[run.ConversationID] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- run:
		return nil
	default:
		return fmt.Errorf("queue full for conversation %s", run.ConversationID)
	}
}

// processLane drains a single conversation lane, acquiring a semaphore slot
// before running the processor synchronously. This ensures strict FIFO
// ordering within a conversation while the semaphore limits
// cross-conversation parallelism.
func (q *Queue) processLane(lane chan *Run) {
	defer q.wg.Done()
	for run := range lane {
		// After Stop the processor still sees the run, with its context
		// already cancelled, so it can finalize what the run owns.
		if q.ctx.Err() != nil {
			q.process(run)
			continue
		}
		if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
			q.process(run)
			continue
		}
		q.process(run)
		q.semaphore.Release(1)
	}
}

func (q *Queue) process(run *Run) {
	defer run.finish()
	if q.processor == nil {
		return
	}

	q.active.Add(1)
	defer q.active.Add(-1)

	cancel := run.start(q.ctx)
	defer cancel()

	run.SetStatus(RunStatusRunning)
	err := q.processor(run)
	switch {
	case err != nil:
		run.Error = err
		run.SetStatus(RunStatusFailed)
		slog.Error("run failed", "run_id", string(run.ID), "conversation_id", string(run.ConversationID), "error", err)
	case run.Ctx.Err() != nil:
		run.SetStatus(RunStatusCancelled)
	default:
		run.SetStatus(RunStatusComplete)
	}
}

// WaitIdle blocks until no runs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
