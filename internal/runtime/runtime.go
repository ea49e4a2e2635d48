package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/opla/internal/assets"
	ctxengine "github.com/user/opla/internal/context"
	"github.com/user/opla/internal/gateway"
	"github.com/user/opla/internal/messages"
	"github.com/user/opla/internal/providers"
	"github.com/user/opla/internal/types"
	"github.com/user/opla/pkg/llm"
)

// Host owns conversation state. The runtime reads messages from it and
// hands every change back to it; it never keeps message lists of its own.
type Host interface {
	Messages(ctx context.Context, id types.ConversationID) ([]types.Message, error)
	// UpdateMessages merges changed into the conversation's messages and
	// returns the new list. persist forces a write to storage.
	UpdateMessages(ctx context.Context, id types.ConversationID, changed []types.Message, persist bool) ([]types.Message, error)
	RecordUsage(ctx context.Context, id types.ConversationID, usage types.Usage) error
}

// Runtime turns a queued run into a streamed assistant message.
type Runtime struct {
	host      Host
	providers *providers.Registry
	engine    *ctxengine.Engine
	loader    *assets.Loader
	retry     *gateway.RetryPolicy
	now       func() time.Time
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(rt *Runtime) { rt.now = now }
}

// WithRetryPolicy sets the policy used around opening the stream.
func WithRetryPolicy(p *gateway.RetryPolicy) Option {
	return func(rt *Runtime) { rt.retry = p }
}

// New creates a Runtime with the given dependencies.
func New(host Host, registry *providers.Registry, engine *ctxengine.Engine, loader *assets.Loader, opts ...Option) *Runtime {
	rt := &Runtime{
		host:      host,
		providers: registry,
		engine:    engine,
		loader:    loader,
		retry:     gateway.DefaultRetryPolicy(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// ProcessSend streams the completion for run.AssistantMessageID. The
// message always ends delivered or in error: a cancelled stream keeps what
// arrived so far, a failure is recorded on the provider and replaced by the
// apology text. This is the function passed to Gateway.SetProcessor.
func (rt *Runtime) ProcessSend(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Final writes must land even after cancellation.
	persistCtx := context.WithoutCancel(ctx)
	started := rt.now()

	list, err := rt.host.Messages(persistCtx, run.ConversationID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	assistant, ok := messages.Find(list, run.AssistantMessageID)
	if !ok {
		return fmt.Errorf("assistant message %s not found", run.AssistantMessageID)
	}
	// Cancelled while waiting in the queue.
	if ctx.Err() != nil {
		return rt.finish(persistCtx, run, assistant, messages.OutcomeCancelled, nil, nil)
	}

	providerName := run.Target.ProviderID
	stream, err := rt.open(ctx, run, list)
	if err != nil {
		if ctx.Err() != nil {
			return rt.finish(persistCtx, run, assistant, messages.OutcomeCancelled, nil, nil)
		}
		if !errors.Is(err, ctxengine.ErrContextWindowExceeded) {
			rt.providers.RecordError(providerName, err, rt.now())
		}
		if ferr := rt.finish(persistCtx, run, assistant, messages.OutcomeFailed, nil, err); ferr != nil {
			return ferr
		}
		return fmt.Errorf("start completion: %w", err)
	}

	var (
		final     *llm.Usage
		streamErr error
	)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-stream:
			if !ok {
				break loop
			}
			if d.Err != nil {
				streamErr = d.Err
				break loop
			}
			if d.Content != "" {
				assistant = messages.AppendStream(assistant, d.Content, rt.now())
				if _, err := rt.update(ctx, run, assistant, false); err != nil {
					return err
				}
			}
			if d.Done {
				final = d.Usage
				break loop
			}
		}
	}

	switch {
	case ctx.Err() != nil:
		slog.Debug("completion cancelled", "conversation_id", run.ConversationID, "message_id", assistant.ID)
		usage := rt.usage(assistant, final, started)
		return rt.finish(persistCtx, run, assistant, messages.OutcomeCancelled, usage, nil)
	case streamErr != nil:
		rt.providers.RecordError(providerName, streamErr, rt.now())
		if err := rt.finish(persistCtx, run, assistant, messages.OutcomeFailed, nil, streamErr); err != nil {
			return err
		}
		return fmt.Errorf("stream completion: %w", streamErr)
	default:
		usage := rt.usage(assistant, final, started)
		return rt.finish(persistCtx, run, assistant, messages.OutcomeCompleted, usage, nil)
	}
}

// open builds the prompt and opens the provider stream, retrying
// transient failures.
func (rt *Runtime) open(ctx context.Context, run *gateway.Run, list []types.Message) (<-chan llm.Delta, error) {
	history := messages.Before(list, run.AssistantMessageID)

	var excerpts []ctxengine.Excerpt
	if rt.loader != nil {
		excerpts = rt.loader.LoadAll(ctx, run.Conversation.Assets)
	}

	prompt, err := rt.engine.Build(history, run.Effective, excerpts)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	_, client, err := rt.providers.Get(run.Target.ProviderID)
	if err != nil {
		return nil, err
	}

	req := &llm.Request{
		Model:      run.Target.ModelID,
		Messages:   prompt,
		Parameters: run.Effective.Parameters,
	}

	var stream <-chan llm.Delta
	err = rt.retry.Execute(ctx, func() error {
		run.Attempts++
		s, err := client.Stream(ctx, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (rt *Runtime) usage(assistant types.Message, final *llm.Usage, started time.Time) *types.Usage {
	elapsed := rt.now().Sub(started)
	u := &types.Usage{TotalMs: elapsed.Milliseconds()}
	if final != nil {
		u.PromptTokens = final.InputTokens
		u.CompletionTokens = final.OutputTokens
		u.TokenCount = final.OutputTokens
	}
	if u.TokenCount == 0 {
		if text := types.TextOf(assistant.Content); text != "" {
			u.TokenCount = rt.engine.CountTokens(text)
		}
	}
	if elapsed > 0 {
		u.TotalPerSecond = float64(u.TokenCount) / elapsed.Seconds()
	}
	return u
}

func (rt *Runtime) finish(ctx context.Context, run *gateway.Run, assistant types.Message, outcome messages.Outcome, usage *types.Usage, cause error) error {
	assistant = messages.Finalize(assistant, outcome, usage, cause, rt.now())
	if _, err := rt.update(ctx, run, assistant, true); err != nil {
		return err
	}
	if usage != nil {
		if err := rt.host.RecordUsage(ctx, run.ConversationID, *usage); err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
	}
	return nil
}

func (rt *Runtime) update(ctx context.Context, run *gateway.Run, msg types.Message, persist bool) ([]types.Message, error) {
	list, err := rt.host.UpdateMessages(ctx, run.ConversationID, []types.Message{msg}, persist)
	if err != nil {
		return nil, fmt.Errorf("update messages: %w", err)
	}
	if run.OnUpdate != nil {
		run.OnUpdate(list)
	}
	return list, nil
}
