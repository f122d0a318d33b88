// Package plugins resolves, loads and composes platform plugins.
package plugins

import (
	"context"
	"fmt"

	"github.com/vormadev/rstatic/static"
)

// Entry is a normalized plugin configuration item.
type Entry struct {
	Name    string
	Options map[string]any
}

// nestedKey names the option holding a plugin's own plugin list.
const nestedKey = "plugins"

// Normalize resolves a plugins configuration value into a flat list of
// entries. Accepted items are a name, an Entry, or a [name, options] tuple.
// A tuple whose options declare "plugins" is followed by those plugins,
// depth-first, ahead of later siblings.
func Normalize(ctx context.Context, config any) ([]Entry, error) {
	resolved, err := static.Resolve(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("resolve plugins: %w", err)
	}
	var out []Entry
	if err := appendEntries(ctx, &out, resolved, 0); err != nil {
		return nil, err
	}
	return out, nil
}

const maxNesting = 16

func appendEntries(ctx context.Context, out *[]Entry, list any, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("%w: plugins nested more than %d levels", static.ErrInvalidPlugin, maxNesting)
	}
	var items []any
	switch t := list.(type) {
	case nil:
		return nil
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	case []Entry:
		for _, e := range t {
			items = append(items, e)
		}
	default:
		return fmt.Errorf("%w: plugins must be a list, got %T", static.ErrInvalidPlugin, list)
	}

	for i, item := range items {
		entry, err := entryFrom(item)
		if err != nil {
			return fmt.Errorf("plugin %d: %w", i, err)
		}
		nested, hasNested := entry.Options[nestedKey]
		if hasNested {
			opts := make(map[string]any, len(entry.Options)-1)
			for k, v := range entry.Options {
				if k != nestedKey {
					opts[k] = v
				}
			}
			entry.Options = opts
		}
		*out = append(*out, entry)

		if hasNested {
			resolvedNested, err := static.Resolve(ctx, nested)
			if err != nil {
				return fmt.Errorf("resolve plugins of %q: %w", entry.Name, err)
			}
			if err := appendEntries(ctx, out, resolvedNested, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func entryFrom(item any) (Entry, error) {
	switch t := item.(type) {
	case string:
		return Entry{Name: t, Options: map[string]any{}}, nil
	case Entry:
		if t.Options == nil {
			t.Options = map[string]any{}
		}
		return t, nil
	case []any:
		if len(t) == 0 || len(t) > 2 {
			return Entry{}, fmt.Errorf("%w: plugin tuple must be [name] or [name, options]", static.ErrInvalidPlugin)
		}
		name, ok := t[0].(string)
		if !ok {
			return Entry{}, fmt.Errorf("%w: plugin name must be a string, got %T", static.ErrInvalidPlugin, t[0])
		}
		e := Entry{Name: name, Options: map[string]any{}}
		if len(t) == 2 && t[1] != nil {
			opts, ok := t[1].(map[string]any)
			if !ok {
				return Entry{}, fmt.Errorf("%w: options of %q must be an object, got %T", static.ErrInvalidPlugin, name, t[1])
			}
			e.Options = opts
		}
		return e, nil
	default:
		return Entry{}, fmt.Errorf("%w: cannot use %T as a plugin", static.ErrInvalidPlugin, item)
	}
}
