package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/user/opla/internal/conversations"
	"github.com/user/opla/internal/gateway"
	"github.com/user/opla/internal/messages"
	"github.com/user/opla/internal/presets"
	"github.com/user/opla/internal/prompt"
	"github.com/user/opla/internal/types"
)

// SetPrompt parses and validates the text being typed in a conversation and
// stores it as the conversation's current prompt. Writes are debounced. A
// temp conversation whose prompt is cleared is discarded.
func (a *App) SetPrompt(id types.ConversationID, raw string, caret int) (types.ParsedPrompt, error) {
	p := prompt.Validate(a.parser.Parse(raw, caret), a.registry)

	a.mu.Lock()
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		a.mu.Unlock()
		return p, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	a.conversations = conversations.SetPrompt(a.conversations, id, p)
	_, kept := conversations.Find(id, a.conversations)
	if !kept {
		delete(a.messages, id)
	}
	delete(a.errors, id)
	a.mu.Unlock()

	switch {
	case !kept:
		a.prompts.Cancel(id)
		slog.Debug("temp conversation discarded", "conversation_id", id)
	case !c.Temp:
		a.prompts.Push(id, p)
	}
	return p, nil
}

// persistPrompt is the debounced write of a conversation's prompt. The
// prompt is already in the in-memory list, which is what gets written.
func (a *App) persistPrompt(id types.ConversationID, _ types.ParsedPrompt) error {
	a.mu.RLock()
	c, ok := conversations.Find(id, a.conversations)
	a.mu.RUnlock()
	if !ok || c.Temp {
		return nil
	}
	return a.saveIndex(context.Background())
}

// Send sends the current prompt of a conversation. Validation failures are
// stored as the conversation's error string and returned without changing
// any state. On success the user message and a pending assistant message
// are added, a temp conversation becomes permanent and the completion is
// queued.
func (a *App) Send(ctx context.Context, id types.ConversationID, opts ...gateway.RunOption) (*gateway.Run, error) {
	if run, ok := a.gateway.Active(id); ok {
		select {
		case <-run.Done():
		default:
			return nil, fmt.Errorf("send: %w", ErrBusy)
		}
	}

	a.mu.Lock()
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	var p types.ParsedPrompt
	if c.CurrentPrompt != nil {
		p = *c.CurrentPrompt
	}
	p = prompt.Validate(p, a.registry)
	if err := prompt.CheckSend(p); err != nil {
		a.errors[id] = err.Error()
		a.mu.Unlock()
		return nil, err
	}
	target, name, ok := a.targetLocked(c, p)
	if !ok {
		a.errors[id] = ErrNoTarget.Error()
		a.mu.Unlock()
		return nil, ErrNoTarget
	}
	current, err := a.messagesLocked(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}

	now := a.now()
	user, assistant := messages.Link(
		messages.NewUserMessage(id, p, now),
		messages.NewAssistantMessage(id, name, now),
	)
	a.messages[id] = messages.Merge(current, []types.Message{user, assistant}, now)

	c = conversations.Promote(c, now)
	c.CurrentPrompt = nil
	a.conversations = conversations.Update(c, a.conversations, now, false)
	c, _ = conversations.Find(id, a.conversations)
	delete(a.errors, id)
	eff := presets.Resolve(nil, &c, a.presets, false)
	a.mu.Unlock()

	a.prompts.Cancel(id)
	if err := a.saveIndex(ctx); err != nil {
		return nil, err
	}
	if err := a.saveMessages(ctx, id); err != nil {
		return nil, err
	}
	return a.submit(ctx, c, user.ID, assistant, target, eff, opts)
}

// Resend generates a new response for a user message, or for the user
// message an assistant message answered. The previous response is kept in
// the content history of the assistant message.
func (a *App) Resend(ctx context.Context, id types.ConversationID, messageID types.MessageID, opts ...gateway.RunOption) (*gateway.Run, error) {
	if run, ok := a.gateway.Active(id); ok {
		select {
		case <-run.Done():
		default:
			return nil, fmt.Errorf("resend: %w", ErrBusy)
		}
	}

	a.mu.Lock()
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	list, err := a.messagesLocked(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	msg, ok := messages.Find(list, messageID)
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	user := msg
	if msg.Author.Role == types.RoleAssistant {
		if user, ok = messages.Sibling(list, msg); !ok {
			a.mu.Unlock()
			return nil, fmt.Errorf("user message of %s: %w", messageID, ErrNotFound)
		}
	}

	p := prompt.Validate(prompt.FromRaw(types.RawOf(user.Content)), a.registry)
	target, name, ok := a.targetLocked(c, p)
	if !ok {
		a.errors[id] = ErrNoTarget.Error()
		a.mu.Unlock()
		return nil, ErrNoTarget
	}

	now := a.now()
	assistant, ok := messages.Sibling(list, user)
	if ok {
		assistant = messages.ChangeContent(assistant, "", "", types.StatusPending, now)
		assistant.Author.Name = name
	} else {
		user, assistant = messages.Link(user, messages.NewAssistantMessage(id, name, now))
	}
	a.messages[id] = messages.Merge(list, []types.Message{user, assistant}, now)
	delete(a.errors, id)
	eff := presets.Resolve(nil, &c, a.presets, false)
	a.mu.Unlock()

	if err := a.saveMessages(ctx, id); err != nil {
		return nil, err
	}
	return a.submit(ctx, c, user.ID, assistant, target, eff, opts)
}

func (a *App) submit(ctx context.Context, c types.Conversation, user types.MessageID, assistant types.Message, target types.Connector, eff presets.Effective, opts []gateway.RunOption) (*gateway.Run, error) {
	run := gateway.NewRun(c, user, assistant.ID, target, eff)
	if err := a.gateway.Submit(run, opts...); err != nil {
		failed := messages.Finalize(assistant, messages.OutcomeFailed, nil, err, a.now())
		if _, uerr := a.UpdateMessages(ctx, c.ID, []types.Message{failed}, true); uerr != nil {
			slog.Error("failed to record rejected send", "conversation_id", c.ID, "error", uerr)
		}
		return nil, err
	}
	slog.Debug("send queued", "conversation_id", c.ID, "run_id", run.ID, "model", target.ModelID)
	return run, nil
}

// targetLocked picks the completion target: the prompt's mention, then the
// conversation's assistant and model connectors, then the default target.
// It also returns the name the assistant message is authored by.
func (a *App) targetLocked(c types.Conversation, p types.ParsedPrompt) (types.Connector, string, bool) {
	if t, ok := prompt.SelectedTarget(p, a.registry); ok {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		return t.Connector(), name, true
	}
	for _, kind := range []types.ConnectorType{types.ConnectorAssistant, types.ConnectorModel} {
		if conn, ok := conversations.ResolveConnector(c, kind); ok {
			return conn, connectorName(conn), true
		}
	}
	if a.defaultTarget != nil {
		return *a.defaultTarget, connectorName(*a.defaultTarget), true
	}
	return types.Connector{}, "", false
}

func connectorName(c types.Connector) string {
	if c.Type == types.ConnectorAssistant {
		return c.AssistantID
	}
	return c.ModelID
}

// Cancel stops the completion running in a conversation. It reports
// whether there was one.
func (a *App) Cancel(id types.ConversationID) bool {
	return a.gateway.Cancel(id)
}

// EditMessage replaces the text of a message, keeping the previous version
// in its content history.
func (a *App) EditMessage(ctx context.Context, id types.ConversationID, messageID types.MessageID, text string) (types.Message, error) {
	a.mu.Lock()
	list, err := a.messagesLocked(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return types.Message{}, err
	}
	msg, ok := messages.Find(list, messageID)
	a.mu.Unlock()
	if !ok {
		return types.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}

	msg = messages.ChangeContent(msg, text, text, "", a.now())
	if _, err := a.UpdateMessages(ctx, id, []types.Message{msg}, true); err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

// DeleteMessage removes a message and, for a user message, the response
// linked to it.
func (a *App) DeleteMessage(ctx context.Context, id types.ConversationID, messageID types.MessageID) error {
	a.mu.Lock()
	list, err := a.messagesLocked(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	msg, ok := messages.Find(list, messageID)
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	ids := []types.MessageID{messageID}
	if msg.Author.Role == types.RoleUser && msg.Sibling != "" {
		ids = append(ids, msg.Sibling)
	}
	a.messages[id] = messages.Remove(list, ids...)
	a.mu.Unlock()

	return a.saveMessages(ctx, id)
}

// Export is a set of conversations with their messages.
type Export struct {
	Conversations []types.Conversation                    `json:"conversations"`
	Messages      map[types.ConversationID][]types.Message `json:"messages,omitempty"`
}

// Import merges exported conversations into the list. When a conversation
// exists on both sides the more recently updated copy wins, and the
// imported one on a tie. Messages of a conversation whose local copy won
// are left alone; otherwise they are merged by id with the same rule.
func (a *App) Import(ctx context.Context, exp Export) (int, error) {
	incoming := make([]types.Conversation, 0, len(exp.Conversations))
	for _, c := range exp.Conversations {
		if c.ID == "" || c.Temp {
			continue
		}
		c.Messages = nil
		incoming = append(incoming, c)
	}

	var (
		errs    []error
		touched []types.ConversationID
	)
	for _, c := range incoming {
		msgs := exp.Messages[c.ID]
		if len(msgs) == 0 {
			continue
		}
		a.mu.Lock()
		// The local copy of the conversation is newer; keep its messages.
		if local, known := conversations.Find(c.ID, a.conversations); known && c.UpdatedAt.Before(local.UpdatedAt) {
			a.mu.Unlock()
			continue
		}
		current, ok := a.messages[c.ID]
		if !ok {
			if _, known := conversations.Find(c.ID, a.conversations); known {
				var err error
				if current, err = a.messagesLocked(ctx, c.ID); err != nil {
					errs = append(errs, err)
					a.mu.Unlock()
					continue
				}
			}
		}
		a.messages[c.ID] = messages.MergeNewer(current, msgs)
		a.mu.Unlock()
		touched = append(touched, c.ID)
	}

	a.mu.Lock()
	a.conversations = conversations.MergeLists(a.conversations, incoming)
	a.mu.Unlock()

	if err := a.saveIndex(ctx); err != nil {
		return 0, err
	}
	for _, id := range touched {
		if err := a.saveMessages(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return len(incoming), errors.Join(errs...)
}

// Export returns the persistent conversations with their messages.
func (a *App) Export(ctx context.Context) (Export, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	exp := Export{Messages: make(map[types.ConversationID][]types.Message)}
	for _, c := range a.conversations {
		if c.Temp {
			continue
		}
		list, err := a.messagesLocked(ctx, c.ID)
		if err != nil {
			return Export{}, err
		}
		exp.Conversations = append(exp.Conversations, c)
		exp.Messages[c.ID] = slices.Clone(list)
	}
	return exp, nil
}
