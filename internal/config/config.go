package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageJSON = "json"
	StorageBolt = "bolt"
)

type Config struct {
	DataDir          string `json:"data_dir"`
	LogLevel         string `json:"log_level"`
	MaxConcurrent    int    `json:"max_concurrent"`
	Storage          string `json:"storage"`
	PromptDebounceMs int    `json:"prompt_debounce_ms"`
	PresetsFile      string `json:"presets_file"`
	LLM              struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".opla"),
		MaxConcurrent: 2,
	}
	cfg.LogLevel = "info"
	cfg.Storage = StorageJSON
	cfg.PromptDebounceMs = 500
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-3.5-turbo"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	return cfg
}

// Load reads the config file at path over the defaults, writing the
// defaults when the file does not exist. A .env file in the working
// directory and the process environment override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if dataDir := os.Getenv("OPLA_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level := os.Getenv("OPLA_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if cfg.Storage == "" {
		cfg.Storage = StorageJSON
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values Load and SetValue accept. Zero numbers mean
// "use the built-in default" and are allowed.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case "", StorageJSON, StorageBolt:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q (want %s or %s)", c.Storage, StorageJSON, StorageBolt))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	for _, f := range []struct {
		key string
		n   int
	}{
		{"max_concurrent", c.MaxConcurrent},
		{"prompt_debounce_ms", c.PromptDebounceMs},
		{"llm.max_tokens", c.LLM.MaxTokens},
		{"llm.max_context_tokens", c.LLM.MaxContextTokens},
		{"llm.output_reserve", c.LLM.OutputReserve},
	} {
		if f.n < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.key, f.n))
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxContextTokens > 0 && c.LLM.OutputReserve >= c.LLM.MaxContextTokens {
		errs = append(errs, fmt.Errorf("llm.output_reserve (%d) must be below llm.max_context_tokens (%d)", c.LLM.OutputReserve, c.LLM.MaxContextTokens))
	}
	return errors.Join(errs...)
}

// PresetsPath returns the presets file, defaulting to presets.toml in the
// data directory.
func (c *Config) PresetsPath() string {
	if c.PresetsFile != "" {
		return c.PresetsFile
	}
	return filepath.Join(c.DataDir, "presets.toml")
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeRaw(path, data)
}

func writeRaw(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its generic JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as dot-separated keys, optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue reads one dot-separated key from the file at path, writing the
// defaults first when the file does not exist.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets one dot-separated key in the file at path. Only keys the
// configuration knows are accepted. Values of string keys are stored as
// given; other values are parsed as JSON. The result is decoded and
// validated before anything is written, so a bad value never reaches disk.
func SetValue(path, key, value string) error {
	def, err := ListValues(Default(), false)
	if err != nil {
		return err
	}
	current, known := def[key]
	if !known {
		return fmt.Errorf("unknown config key: %s", key)
	}

	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var v any = value
	if _, isString := current.(string); !isString {
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return fmt.Errorf("invalid value for %s: %q is not a number", key, value)
		}
	}

	flat := Flatten(m)
	flat[key] = v
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return writeRaw(path, data)
}
