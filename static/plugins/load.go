package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vormadev/rstatic/static"
)

// Loader produces the raw platform export of a resolved plugin.
type Loader interface {
	Load(ctx context.Context, p static.ResolvedPlugin) (any, error)
}

// Factory builds a plugin export from its options.
type Factory func(options map[string]any) (any, error)

// Module mirrors a module export with a default export and a hooks export.
// Either field may hold a Factory.
type Module struct {
	Default any
	Hooks   any
}

// Registry is an in-process Loader keyed by plugin name.
type Registry struct {
	mu       sync.RWMutex
	exports  map[string]any
	builtins map[string]Builtin
}

func NewRegistry() *Registry {
	return &Registry{exports: map[string]any{}, builtins: map[string]Builtin{}}
}

// Register binds a platform export to a plugin name. The export may be any
// shape Adapt accepts.
func (r *Registry) Register(name string, export any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exports[name] = export
}

// RegisterBuiltin registers a platform export that is found even when no
// plugin directory exists on disk.
func (r *Registry) RegisterBuiltin(name string, export any, hasApp bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if export != nil {
		r.exports[name] = export
	}
	r.builtins[name] = Builtin{Platform: export != nil, App: hasApp}
}

// Builtins returns a copy of the registered builtins, for a Resolver.
func (r *Registry) Builtins() map[string]Builtin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Builtin, len(r.builtins))
	for k, v := range r.builtins {
		out[k] = v
	}
	return out
}

// Names lists every registered export name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.exports))
	for name := range r.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Load(_ context.Context, p static.ResolvedPlugin) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	export, ok := r.exports[p.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no platform export registered for %q (entry %s)", static.ErrInvalidPlugin, p.Name, p.Platform)
	}
	return export, nil
}

// Adapt unwraps a raw export into hooks. A factory is called with options;
// then a default export is unwrapped (and called if a factory); then a hooks
// export is unwrapped (and called if a factory). The result must be
// static.Hooks, *static.Hooks or a map of hook name to hook function.
// Unknown hook names in a map are ignored.
func Adapt(export any, options map[string]any) (static.Hooks, error) {
	v, err := callFactory(export, options)
	if err != nil {
		return static.Hooks{}, err
	}

	if d, ok := field(v, "default"); ok {
		if v, err = callFactory(d, options); err != nil {
			return static.Hooks{}, err
		}
	}
	if h, ok := field(v, "hooks"); ok {
		if v, err = callFactory(h, options); err != nil {
			return static.Hooks{}, err
		}
	}

	switch t := v.(type) {
	case static.Hooks:
		return t, nil
	case *static.Hooks:
		if t == nil {
			return static.Hooks{}, nil
		}
		return *t, nil
	case map[string]any:
		var hooks static.Hooks
		for name, fn := range t {
			if _, err := hooks.Set(name, fn); err != nil {
				return static.Hooks{}, err
			}
		}
		return hooks, nil
	case nil:
		return static.Hooks{}, nil
	default:
		return static.Hooks{}, fmt.Errorf("%w: export must resolve to hooks, got %T", static.ErrInvalidPlugin, v)
	}
}

func field(v any, key string) (any, bool) {
	switch t := v.(type) {
	case Module:
		return moduleField(t, key)
	case *Module:
		if t == nil {
			return nil, false
		}
		return moduleField(*t, key)
	case map[string]any:
		f, ok := t[key]
		return f, ok
	}
	return nil, false
}

func moduleField(m Module, key string) (any, bool) {
	switch key {
	case "default":
		return m.Default, m.Default != nil
	case "hooks":
		return m.Hooks, m.Hooks != nil
	}
	return nil, false
}

func callFactory(v any, options map[string]any) (any, error) {
	switch f := v.(type) {
	case Factory:
		return f(options)
	case func(map[string]any) (any, error):
		return f(options)
	case func(map[string]any) any:
		return f(options), nil
	case func(map[string]any) static.Hooks:
		return f(options), nil
	case func(map[string]any) (static.Hooks, error):
		return f(options)
	default:
		return v, nil
	}
}

// Compose loads every resolved plugin with a platform side and chains their
// hooks onto the identity hooks in resolution order.
func Compose(ctx context.Context, loader Loader, resolved []static.ResolvedPlugin) (static.Hooks, error) {
	hooks := static.NewHooks()
	for _, p := range resolved {
		if !p.HasPlatform() {
			continue
		}
		export, err := loader.Load(ctx, p)
		if err != nil {
			return static.Hooks{}, fmt.Errorf("load plugin %q: %w", p.Name, err)
		}
		h, err := Adapt(export, p.Options)
		if err != nil {
			return static.Hooks{}, fmt.Errorf("adapt plugin %q: %w", p.Name, err)
		}
		hooks = hooks.Then(h)
	}
	return hooks, nil
}
