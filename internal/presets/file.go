package presets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/user/opla/internal/types"
)

type presetFile struct {
	Presets []presetEntry `toml:"preset"`
}

type presetEntry struct {
	ID                  string         `toml:"id"`
	Name                string         `toml:"name"`
	Description         string         `toml:"description,omitempty"`
	ParentID            string         `toml:"parent_id,omitempty"`
	System              string         `toml:"system,omitempty"`
	ContextWindowPolicy string         `toml:"context_window_policy,omitempty"`
	KeepSystem          *bool          `toml:"keep_system"`
	Models              []string       `toml:"models,omitempty"`
	Provider            string         `toml:"provider,omitempty"`
	Disabled            bool           `toml:"disabled,omitempty"`
	Parameters          map[string]any `toml:"parameters,omitempty"`
}

// LoadFile reads user presets from a TOML file of [[preset]] tables. A
// missing file yields no presets. Entries without an id get a new one;
// keep_system defaults to true.
func LoadFile(path string, now time.Time) ([]types.Preset, error) {
	var f presetFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode presets %s: %w", path, err)
	}

	out := make([]types.Preset, 0, len(f.Presets))
	for i, e := range f.Presets {
		if e.Name == "" {
			return nil, fmt.Errorf("decode presets %s: preset %d has no name", path, i)
		}
		p := types.Preset{
			ID:                  types.PresetID(e.ID),
			Record:              types.NewRecord(now),
			Name:                e.Name,
			Description:         e.Description,
			ParentID:            types.PresetID(e.ParentID),
			System:              e.System,
			ContextWindowPolicy: types.ContextWindowPolicy(e.ContextWindowPolicy),
			KeepSystem:          true,
			Models:              e.Models,
			Provider:            e.Provider,
			Disabled:            e.Disabled,
			Parameters:          e.Parameters,
		}
		if p.ID == "" {
			p.ID = types.NewPresetID()
		}
		if e.KeepSystem != nil {
			p.KeepSystem = *e.KeepSystem
		}
		switch p.ContextWindowPolicy {
		case "", types.PolicyNone, types.PolicyRolling, types.PolicyStop, types.PolicyLast:
		default:
			return nil, fmt.Errorf("decode presets %s: preset %q: unknown context window policy %q", path, p.Name, e.ContextWindowPolicy)
		}
		out = append(out, p)
	}
	return out, nil
}

// All returns the built-in presets followed by those in path. User presets
// cannot shadow a built-in id.
func All(path string, now time.Time) ([]types.Preset, error) {
	all := Builtins()
	if path == "" {
		return all, nil
	}
	user, err := LoadFile(path, now)
	if err != nil {
		return all, err
	}
	for _, p := range user {
		if _, ok := Find(all, p.ID); ok {
			continue
		}
		all = append(all, p)
	}
	return all, nil
}

// SaveFile writes the user presets of list to path. Read-only presets are
// skipped. The file is replaced atomically.
func SaveFile(path string, list []types.Preset) error {
	var f presetFile
	for _, p := range list {
		if p.Readonly {
			continue
		}
		keep := p.KeepSystem
		f.Presets = append(f.Presets, presetEntry{
			ID:                  string(p.ID),
			Name:                p.Name,
			Description:         p.Description,
			ParentID:            string(p.ParentID),
			System:              p.System,
			ContextWindowPolicy: string(p.ContextWindowPolicy),
			KeepSystem:          &keep,
			Models:              p.Models,
			Provider:            p.Provider,
			Disabled:            p.Disabled,
			Parameters:          p.Parameters,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create presets dir: %w", err)
	}
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create presets file: %w", err)
	}
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode presets: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close presets file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename presets file: %w", err)
	}
	return nil
}
