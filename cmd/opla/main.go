package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/opla/internal/app"
	"github.com/user/opla/internal/commands"
	"github.com/user/opla/internal/config"
	ctxengine "github.com/user/opla/internal/context"
	"github.com/user/opla/internal/providers"
	"github.com/user/opla/internal/state"
	"github.com/user/opla/internal/types"
	"github.com/user/opla/pkg/llm"
	"github.com/user/opla/pkg/llm/openai"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "opla",
	Short:         "Chat with language models from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", filepath.Join(os.Getenv("HOME"), ".opla", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// env is a started application with the stores behind it.
type env struct {
	cfg       *config.Config
	app       *app.App
	providers *providers.Registry
	stored    *state.ProviderStore
	closers   []func() error
}

func openStore(cfg *config.Config) (types.Persistence, func() error, error) {
	switch cfg.Storage {
	case config.StorageBolt:
		store, err := state.OpenBoltStore(filepath.Join(cfg.DataDir, "opla.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return state.NewJSONStore(cfg.DataDir), func() error { return nil }, nil
	}
}

// defaultProvider is the provider record for the backend in the config file.
func defaultProvider(cfg *config.Config) types.Provider {
	return types.Provider{
		ID:     types.ProviderID(cfg.LLM.Provider),
		Record: types.NewRecord(time.Now()),
		Name:   cfg.LLM.Provider,
		Type:   types.ProviderAPI,
		URL:    cfg.LLM.BaseURL,
		Key:    cfg.LLM.APIKey,
	}
}

func newClient(cfg *config.Config, p types.Provider) llm.Provider {
	return openai.New(&llm.Config{
		BaseURL:     p.URL,
		APIKey:      p.Key,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
}

// openEnv loads the config, opens storage, registers the providers and
// models, and starts the application.
func openEnv(ctx context.Context) (*env, error) {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	e := &env{cfg: cfg, closers: []func() error{closeStore}}

	// Providers: the configured backend first, then any added with
	// "opla provider add".
	e.stored = state.NewProviderStore(filepath.Join(cfg.DataDir, "providers.json"))
	e.providers = providers.NewRegistry()
	base := defaultProvider(cfg)
	if saved, err := e.stored.Get(string(base.ID)); err == nil {
		base.Errors = saved.Errors
	}
	e.providers.Register(base, newClient(cfg, base))
	list, err := e.stored.List()
	if err != nil {
		slog.Warn("failed to read providers", "path", e.stored.Path(), "error", err)
	}
	for _, p := range list {
		if p.ID == base.ID {
			continue
		}
		e.providers.Register(p, newClient(cfg, p))
	}

	// Models
	registry := commands.NewRegistry()
	registry.AddModel(commands.Model{ID: cfg.LLM.Model, Name: cfg.LLM.Model, ProviderID: string(base.ID)})
	registry.SetLoaded(true)

	engine, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("create context engine: %w", err)
	}

	e.app = app.New(store, registry, e.providers, engine,
		app.WithPresetsFile(cfg.PresetsPath()),
		app.WithMaxConcurrent(int64(cfg.MaxConcurrent)),
		app.WithPromptDelay(time.Duration(cfg.PromptDebounceMs)*time.Millisecond),
		app.WithDefaultTarget(types.Connector{Type: types.ConnectorModel, ModelID: cfg.LLM.Model, ProviderID: string(base.ID)}),
	)
	if err := e.app.Load(ctx); err != nil {
		e.close()
		return nil, err
	}
	e.app.Start(ctx)

	slog.Debug("opla started",
		"data_dir", cfg.DataDir,
		"storage", cfg.Storage,
		"max_concurrent", cfg.MaxConcurrent,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)
	return e, nil
}

// close stops the application, saves provider error logs and closes
// storage.
func (e *env) close() {
	if e.app != nil {
		if err := e.app.Close(); err != nil {
			slog.Error("failed to close app", "error", err)
		}
		e.saveProviderErrors()
	}
	for _, c := range e.closers {
		if err := c(); err != nil {
			slog.Error("failed to close storage", "error", err)
		}
	}
}

func (e *env) saveProviderErrors() {
	for _, p := range e.providers.List() {
		if len(p.Errors) == 0 {
			continue
		}
		if _, err := e.stored.Get(string(p.ID)); err != nil {
			// The configured backend keeps its key in the config file.
			p.Key = ""
			if err := e.stored.Put(p); err != nil {
				slog.Error("failed to save provider", "provider", p.Name, "error", err)
			}
			continue
		}
		if err := e.stored.SetErrors(p.ID, p.Errors); err != nil {
			slog.Error("failed to save provider errors", "provider", p.Name, "error", err)
		}
	}
}
