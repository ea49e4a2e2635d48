// Package app holds the application state: the conversation list, loaded
// message lists, presets and per-conversation error strings. Every change
// goes through App, which persists it and hands sends to the gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/opla/internal/assets"
	"github.com/user/opla/internal/commands"
	ctxengine "github.com/user/opla/internal/context"
	"github.com/user/opla/internal/conversations"
	"github.com/user/opla/internal/debounce"
	"github.com/user/opla/internal/gateway"
	"github.com/user/opla/internal/messages"
	"github.com/user/opla/internal/presets"
	"github.com/user/opla/internal/prompt"
	"github.com/user/opla/internal/providers"
	"github.com/user/opla/internal/runtime"
	"github.com/user/opla/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoTarget = errors.New("no model selected")
	ErrBusy     = gateway.ErrBusy
)

// DefaultPromptDelay is how long prompt edits wait before being persisted.
const DefaultPromptDelay = 500 * time.Millisecond

// Option configures an App.
type Option func(*App)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithScheduler sets the scheduler used to debounce prompt writes.
func WithScheduler(s debounce.Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// WithPromptDelay sets the debounce delay of prompt writes.
func WithPromptDelay(d time.Duration) Option {
	return func(a *App) { a.promptDelay = d }
}

// WithPresetsFile sets the TOML file user presets are read from and saved to.
func WithPresetsFile(path string) Option {
	return func(a *App) { a.presetsPath = path }
}

// WithLoader sets the loader used for conversation assets.
func WithLoader(l *assets.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithMaxConcurrent limits how many conversations stream at once.
func WithMaxConcurrent(n int64) Option {
	return func(a *App) { a.maxConcurrent = n }
}

// WithRetryPolicy sets the policy used when opening completion streams.
func WithRetryPolicy(p *gateway.RetryPolicy) Option {
	return func(a *App) { a.retry = p }
}

// WithDefaultTarget sets the target used when neither the prompt nor the
// conversation selects one.
func WithDefaultTarget(c types.Connector) Option {
	return func(a *App) { a.defaultTarget = &c }
}

// App is the single owner of application state.
type App struct {
	store     types.Persistence
	registry  *commands.Registry
	providers *providers.Registry
	engine    *ctxengine.Engine
	gateway   *gateway.Gateway
	runtime   *runtime.Runtime
	parser    *prompt.Parser
	prompts   *debounce.Debouncer[types.ConversationID, types.ParsedPrompt]

	now           func() time.Time
	scheduler     debounce.Scheduler
	promptDelay   time.Duration
	presetsPath   string
	loader        *assets.Loader
	maxConcurrent int64
	retry         *gateway.RetryPolicy
	defaultTarget *types.Connector

	mu            sync.RWMutex
	conversations []types.Conversation
	messages      map[types.ConversationID][]types.Message
	presets       []types.Preset
	errors        map[types.ConversationID]string

	// writeMu orders snapshots with the writes that persist them.
	writeMu sync.Mutex
}

// New creates an App. Call Load and Start before use.
func New(store types.Persistence, registry *commands.Registry, provs *providers.Registry, engine *ctxengine.Engine, opts ...Option) *App {
	a := &App{
		store:       store,
		registry:    registry,
		providers:   provs,
		engine:      engine,
		parser:      prompt.NewParser(),
		now:         time.Now,
		scheduler:   debounce.RealScheduler{},
		promptDelay: DefaultPromptDelay,
		loader:      assets.NewLoader(assets.DefaultMaxChars),
		messages:    make(map[types.ConversationID][]types.Message),
		errors:      make(map[types.ConversationID]string),
		presets:     presets.Builtins(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = commands.NewRegistry()
	}
	if a.providers == nil {
		a.providers = providers.NewRegistry()
	}

	a.gateway = gateway.New(a.maxConcurrent)
	rtOpts := []runtime.Option{runtime.WithClock(a.now)}
	if a.retry != nil {
		rtOpts = append(rtOpts, runtime.WithRetryPolicy(a.retry))
	}
	a.runtime = runtime.New(a, a.providers, engine, a.loader, rtOpts...)
	a.gateway.SetProcessor(a.runtime.ProcessSend)
	a.prompts = debounce.New(a.promptDelay, a.scheduler, a.persistPrompt, prompt.Compare)
	return a
}

// Load reads the conversation index and the presets.
func (a *App) Load(ctx context.Context) error {
	var (
		list []types.Conversation
		all  []types.Preset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = a.store.ReadConversations(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		all, err = presets.All(a.presetsPath, a.now())
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	a.mu.Lock()
	a.conversations = list
	a.presets = all
	a.mu.Unlock()
	slog.Debug("state loaded", "conversations", len(list), "presets", len(all))
	return nil
}

// Start starts processing sends.
func (a *App) Start(ctx context.Context) {
	a.gateway.Start(ctx)
}

// Close cancels running completions, flushes pending prompt writes and
// waits for outstanding work.
func (a *App) Close() error {
	a.gateway.Stop()
	a.prompts.Stop()
	return nil
}

// Conversations returns the conversation list, most recently updated first.
func (a *App) Conversations() []types.Conversation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return conversations.SortByUpdated(a.conversations)
}

// Conversation returns the conversation with the given id.
func (a *App) Conversation(id types.ConversationID) (types.Conversation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		return types.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c, nil
}

// Error returns the validation error shown for a conversation, if any.
func (a *App) Error(id types.ConversationID) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errors[id]
}

// Presets returns the known presets.
func (a *App) Presets() []types.Preset {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.presets)
}

// Messages returns the messages of a conversation, reading them from the
// store the first time they are needed.
func (a *App) Messages(ctx context.Context, id types.ConversationID) ([]types.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list, err := a.messagesLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(list), nil
}

func (a *App) messagesLocked(ctx context.Context, id types.ConversationID) ([]types.Message, error) {
	if list, ok := a.messages[id]; ok {
		return list, nil
	}
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if c.Temp {
		a.messages[id] = []types.Message{}
		return a.messages[id], nil
	}
	list, err := a.store.ReadConversationMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	a.messages[id] = list
	return list, nil
}

// UpdateMessages merges changed into the messages of a conversation. With
// persist the result is written to the store.
func (a *App) UpdateMessages(ctx context.Context, id types.ConversationID, changed []types.Message, persist bool) ([]types.Message, error) {
	a.mu.Lock()
	current, err := a.messagesLocked(ctx, id)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	merged := messages.Merge(current, changed, a.now())
	a.messages[id] = merged
	a.mu.Unlock()

	if persist {
		if err := a.saveMessages(ctx, id); err != nil {
			return nil, err
		}
	}
	return slices.Clone(merged), nil
}

// RecordUsage stores the usage of the latest completion on the conversation.
func (a *App) RecordUsage(ctx context.Context, id types.ConversationID, usage types.Usage) error {
	if err := a.modify(id, false, func(c types.Conversation) (types.Conversation, error) {
		c.Usage = &usage
		return c, nil
	}); err != nil {
		return err
	}
	return a.saveIndex(ctx)
}

// NewTemp adds an unpersisted conversation for a first message being typed.
func (a *App) NewTemp() types.Conversation {
	c := conversations.CreateTemp(a.now())
	a.mu.Lock()
	a.conversations = append(slices.Clone(a.conversations), c)
	a.mu.Unlock()
	return c
}

// Create adds and persists a new conversation.
func (a *App) Create(ctx context.Context, name string) (types.Conversation, error) {
	c := conversations.Create(name, a.now())
	a.mu.Lock()
	a.conversations = append(slices.Clone(a.conversations), c)
	a.messages[c.ID] = []types.Message{}
	a.mu.Unlock()
	if err := a.saveIndex(ctx); err != nil {
		return types.Conversation{}, err
	}
	return c, nil
}

// Delete cancels any running completion and removes a conversation with its
// messages.
func (a *App) Delete(ctx context.Context, id types.ConversationID) error {
	a.gateway.Cancel(id)
	a.prompts.Cancel(id)

	a.mu.Lock()
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	a.conversations = conversations.Remove(id, a.conversations)
	delete(a.messages, id)
	delete(a.errors, id)
	a.mu.Unlock()

	if c.Temp {
		return nil
	}
	if err := a.store.DeleteConversationMessages(ctx, id); err != nil {
		return err
	}
	return a.saveIndex(ctx)
}

// Rename sets the name of a conversation.
func (a *App) Rename(ctx context.Context, id types.ConversationID, name string) error {
	if err := a.modify(id, false, func(c types.Conversation) (types.Conversation, error) {
		c.Name = name
		return c, nil
	}); err != nil {
		return err
	}
	return a.saveIndex(ctx)
}

// SetPreset selects the preset of a conversation. An empty id clears it.
func (a *App) SetPreset(ctx context.Context, id types.ConversationID, preset types.PresetID) error {
	a.mu.RLock()
	_, known := presets.Find(a.presets, preset)
	a.mu.RUnlock()
	if preset != "" && !known {
		return fmt.Errorf("preset %s: %w", preset, ErrNotFound)
	}
	if err := a.modify(id, false, func(c types.Conversation) (types.Conversation, error) {
		c.Preset = preset
		return c, nil
	}); err != nil {
		return err
	}
	return a.saveIndex(ctx)
}

// UpdatePreset stores a user preset and saves the presets file.
func (a *App) UpdatePreset(p types.Preset) (types.Preset, error) {
	a.mu.Lock()
	list, err := presets.Update(a.presets, p, a.now())
	if err != nil {
		a.mu.Unlock()
		return types.Preset{}, err
	}
	a.presets = list
	saved := list[len(list)-1]
	for _, q := range list {
		if q.ID == p.ID {
			saved = q
		}
	}
	a.mu.Unlock()

	if a.presetsPath != "" {
		if err := presets.SaveFile(a.presetsPath, list); err != nil {
			return types.Preset{}, err
		}
	}
	return saved, nil
}

// Effective resolves the preset settings that apply to a conversation.
func (a *App) Effective(id types.ConversationID) (presets.Effective, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		return presets.Effective{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return presets.Resolve(nil, &c, a.presets, false), nil
}

// SetConnector binds a conversation to a model or assistant, replacing the
// connector of the same type.
func (a *App) SetConnector(ctx context.Context, id types.ConversationID, conn types.Connector) error {
	if err := a.modify(id, false, func(c types.Conversation) (types.Conversation, error) {
		c.Services = conversations.AddOrReplaceConnector(c.Services, conn)
		return c, nil
	}); err != nil {
		return err
	}
	return a.saveIndex(ctx)
}

// AttachFiles adds file assets to a conversation and returns those created.
func (a *App) AttachFiles(ctx context.Context, id types.ConversationID, paths []string) ([]types.Asset, error) {
	var created []types.Asset
	if err := a.modify(id, true, func(c types.Conversation) (types.Conversation, error) {
		c, created = conversations.AddAssets(c, paths, a.now())
		return c, nil
	}); err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, nil
	}
	return created, a.saveIndex(ctx)
}

// DetachAsset removes an asset from a conversation.
func (a *App) DetachAsset(ctx context.Context, id types.ConversationID, asset types.AssetID) error {
	if err := a.modify(id, true, func(c types.Conversation) (types.Conversation, error) {
		return conversations.RemoveAsset(c, asset, a.now()), nil
	}); err != nil {
		return err
	}
	return a.saveIndex(ctx)
}

// modify applies fn to a conversation in the list. skipTimestamp leaves
// UpdatedAt as fn set it.
func (a *App) modify(id types.ConversationID, skipTimestamp bool, fn func(types.Conversation) (types.Conversation, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := conversations.Find(id, a.conversations)
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	c, err := fn(c)
	if err != nil {
		return err
	}
	a.conversations = conversations.Update(c, a.conversations, a.now(), skipTimestamp)
	return nil
}

// saveIndex writes the current conversation list.
func (a *App) saveIndex(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.RLock()
	list := slices.Clone(a.conversations)
	a.mu.RUnlock()

	if err := a.store.WriteConversations(ctx, list); err != nil {
		return fmt.Errorf("save conversations: %w", err)
	}
	return nil
}

// saveMessages writes the current messages of a persistent conversation.
func (a *App) saveMessages(ctx context.Context, id types.ConversationID) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.RLock()
	c, ok := conversations.Find(id, a.conversations)
	list := slices.Clone(a.messages[id])
	a.mu.RUnlock()
	if !ok || c.Temp {
		return nil
	}

	if err := a.store.WriteConversationMessages(ctx, id, list); err != nil {
		return fmt.Errorf("save messages: %w", err)
	}
	return nil
}
