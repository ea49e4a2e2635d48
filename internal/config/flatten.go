package config

import (
	"maps"
	"slices"
	"strings"
)

// llm.api_key is the only secret; provider keys added later live in
// providers.json, not here.
var secretKeys = map[string]bool{
	"llm.api_key": true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Keys returns the dot-separated keys of flat in sorted order.
func Keys(flat map[string]any) []string {
	return slices.Sorted(maps.Keys(flat))
}

// Flatten turns {"llm": {"model": "x"}} into {"llm.model": "x"}.
// Empty nested objects disappear.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A key that collides with a value
// at a shorter path replaces that value with an object.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return out
}

// Mask hides all but the last four characters of a secret string.
func Mask(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}

// MaskSecrets returns a copy of flat with secret values masked.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if secretKeys[k] {
			v = Mask(v)
		}
		out[k] = v
	}
	return out
}
