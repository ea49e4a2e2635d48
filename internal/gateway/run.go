package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/user/opla/internal/presets"
	"github.com/user/opla/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run tracks one completion for a conversation: the user message that
// triggered it and the assistant message being generated.
type Run struct {
	ID                 types.RunID
	ConversationID     types.ConversationID
	UserMessageID      types.MessageID
	AssistantMessageID types.MessageID
	Conversation       types.Conversation
	Effective          presets.Effective
	Target             types.Connector

	Status    RunStatus
	Attempts  int
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error

	// Ctx is set when the run starts and is cancelled by Cancel or when
	// the queue stops.
	Ctx context.Context

	// OnUpdate receives the conversation's message list after every change.
	OnUpdate func([]types.Message)

	mu         sync.Mutex
	cancelled  chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
	doneOnce   sync.Once
}

// NewRun creates a Run in the Queued state for the given message pair.
func NewRun(conv types.Conversation, user, assistant types.MessageID, target types.Connector, eff presets.Effective) *Run {
	return &Run{
		ID:                 types.NewRunID(),
		ConversationID:     conv.ID,
		UserMessageID:      user,
		AssistantMessageID: assistant,
		Conversation:       conv,
		Effective:          eff,
		Target:             target,
		Status:             RunStatusQueued,
		CreatedAt:          time.Now(),
		cancelled:          make(chan struct{}),
		done:               make(chan struct{}),
	}
}

// Cancel asks the run to stop. It is safe to call more than once and
// before the run has started.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelled) })
}

// Cancelled is closed once Cancel has been called.
func (r *Run) Cancelled() <-chan struct{} {
	return r.cancelled
}

// Done is closed when processing of the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// SetStatus updates the run status and its timestamps.
func (r *Run) SetStatus(s RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	switch s {
	case RunStatusRunning:
		r.StartedAt = &now
	case RunStatusComplete, RunStatusCancelled, RunStatusFailed:
		r.EndedAt = &now
	}
	r.Status = s
}

// CurrentStatus returns the run status.
func (r *Run) CurrentStatus() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status
}

// start derives the run context from parent and ties it to Cancel.
func (r *Run) start(parent context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-r.cancelled:
			cancel()
		case <-ctx.Done():
		}
	}()
	r.Ctx = ctx
	return cancel
}

func (r *Run) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}
