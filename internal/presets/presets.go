// Package presets resolves the effective sampling parameters and system
// prompt of a conversation.
package presets

import (
	"errors"
	"time"

	"github.com/user/opla/internal/types"
)

// DefaultID is the id of the built-in preset.
const DefaultID types.PresetID = "opla"

const defaultSystem = "You are an expert in retrieving information.\n"

var ErrReadOnly = errors.New("preset is read-only")

// Effective is the result of resolving a preset against a conversation.
type Effective struct {
	Parameters          map[string]any
	System              string
	ContextWindowPolicy types.ContextWindowPolicy
	KeepSystem          bool
}

// Builtins returns the presets shipped with the application.
func Builtins() []types.Preset {
	return []types.Preset{{
		ID:                  DefaultID,
		Name:                "Opla",
		Description:         "Default preset",
		System:              defaultSystem,
		ContextWindowPolicy: types.PolicyRolling,
		KeepSystem:          true,
		Readonly:            true,
	}}
}

// Find returns the preset with the given id.
func Find(all []types.Preset, id types.PresetID) (types.Preset, bool) {
	for _, p := range all {
		if p.ID == id {
			return p, true
		}
	}
	return types.Preset{}, false
}

// Resolve computes the effective settings. The base is explicit, else the
// preset referenced by conv, else an empty preset. With includeParent the
// parent's system prompt and keepSystem replace the base's (one level
// only). Conversation parameters are deep-merged over the preset's, and a
// present conversation always supplies keepSystem and, when set, its
// context window policy. The system prompt only comes from presets.
func Resolve(explicit *types.Preset, conv *types.Conversation, all []types.Preset, includeParent bool) Effective {
	var base types.Preset
	switch {
	case explicit != nil:
		base = *explicit
	case conv != nil && conv.Preset != "":
		base, _ = Find(all, conv.Preset)
	}

	eff := Effective{
		Parameters:          DeepMerge(nil, base.Parameters),
		System:              base.System,
		ContextWindowPolicy: base.ContextWindowPolicy,
		KeepSystem:          base.KeepSystem,
	}

	if includeParent && base.ParentID != "" {
		if parent, ok := Find(all, base.ParentID); ok {
			eff.System = parent.System
			eff.KeepSystem = parent.KeepSystem
		}
	}

	if conv != nil {
		eff.Parameters = DeepMerge(eff.Parameters, conv.Parameters)
		if conv.ContextWindowPolicy != "" {
			eff.ContextWindowPolicy = conv.ContextWindowPolicy
		}
		eff.KeepSystem = conv.KeepSystem
	}

	if eff.ContextWindowPolicy == "" {
		eff.ContextWindowPolicy = types.PolicyRolling
	}
	return eff
}

// DeepMerge returns base overlaid with override. Nested maps are merged
// key by key; any other override value replaces the base value. Neither
// input is modified.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range override {
		if om, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = DeepMerge(bm, om)
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return DeepMerge(nil, m)
	}
	return v
}

// Update stores p in list, replacing the preset with the same id or
// appending it. Read-only presets cannot be replaced.
func Update(list []types.Preset, p types.Preset, now time.Time) ([]types.Preset, error) {
	out := make([]types.Preset, len(list), len(list)+1)
	copy(out, list)
	for i := range out {
		if out[i].ID != p.ID {
			continue
		}
		if out[i].Readonly {
			return list, ErrReadOnly
		}
		p.CreatedAt = out[i].CreatedAt
		p.Touch(now)
		out[i] = p
		return out, nil
	}
	if p.ID == "" {
		p.ID = types.NewPresetID()
	}
	if p.CreatedAt.IsZero() {
		p.Record = types.NewRecord(now)
	}
	return append(out, p), nil
}
