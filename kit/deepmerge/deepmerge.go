// Package deepmerge merges JSON-shaped values (map[string]any, []any and
// scalars) the way decoded route and site data is layered.
package deepmerge

import "dario.cat/mergo"

// Merge returns a new map holding base overlaid by override. Nested maps are
// merged recursively; any other value in override, including slices, replaces
// the value in base. Neither input is modified.
func Merge(base, override map[string]any) map[string]any {
	out := Clone(base).(map[string]any)
	src := Clone(override).(map[string]any)
	// dst and src share a type, so mergo has nothing to reject.
	_ = mergo.Merge(&out, src, mergo.WithOverride)
	return out
}

// Clone deep-copies maps and slices. Other values are returned as-is. A nil
// map[string]any clones to an empty map.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = Clone(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = Clone(vv)
		}
		return s
	default:
		return v
	}
}
