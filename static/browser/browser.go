// Package browser holds plugins that wrap page rendering: Root wrappers
// decorate the page handler and Routes wrappers decorate the route renderer.
package browser

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/vormadev/rstatic/static"
)

// RenderFunc renders the page body for a normalized route path.
type RenderFunc func(w io.Writer, r *http.Request, path string) error

type (
	RootHook   func(next http.Handler) http.Handler
	RoutesHook func(next RenderFunc) RenderFunc
)

type Hooks struct {
	Root   RootHook
	Routes RoutesHook
}

// Plugin is a browser plugin. Nested plugins are applied after their parent.
type Plugin struct {
	Name    string
	Hooks   Hooks
	Plugins []Plugin
}

// walk visits plugins depth-first, parents before children.
func walk(plugins []Plugin, visit func(Plugin)) {
	for _, p := range plugins {
		visit(p)
		walk(p.Plugins, visit)
	}
}

// RootHooks collects every Root hook, depth-first.
func RootHooks(plugins []Plugin) []RootHook {
	var out []RootHook
	walk(plugins, func(p Plugin) {
		if p.Hooks.Root != nil {
			out = append(out, p.Hooks.Root)
		}
	})
	return out
}

// RoutesHooks collects every Routes hook, depth-first.
func RoutesHooks(plugins []Plugin) []RoutesHook {
	var out []RoutesHook
	walk(plugins, func(p Plugin) {
		if p.Hooks.Routes != nil {
			out = append(out, p.Hooks.Routes)
		}
	})
	return out
}

// ComposeRoot wraps initial with every Root hook in order. The last hook is
// outermost.
func ComposeRoot(initial http.Handler, plugins []Plugin) http.Handler {
	h := initial
	for _, wrap := range RootHooks(plugins) {
		h = wrap(h)
	}
	return h
}

// ComposeRoutes wraps render with every Routes hook in order.
func ComposeRoutes(render RenderFunc, plugins []Plugin) RenderFunc {
	r := render
	for _, wrap := range RoutesHooks(plugins) {
		r = wrap(r)
	}
	return r
}

// Factory builds a browser plugin from its options.
type Factory func(options map[string]any) (Plugin, error)

// Registry maps plugin names to browser plugin factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether a factory is registered for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// FromResolved builds the browser plugins for every resolved plugin with an
// app side. Plugins sharing an app entry are built once.
func (r *Registry) FromResolved(resolved []static.ResolvedPlugin) ([]Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []Plugin
	for _, p := range resolved {
		if !p.HasApp() || seen[p.App] {
			continue
		}
		seen[p.App] = true

		f, ok := r.factories[p.Name]
		if !ok {
			return nil, fmt.Errorf("%w: no browser plugin registered for %q (entry %s)", static.ErrInvalidPlugin, p.Name, p.App)
		}
		plugin, err := f(p.Options)
		if err != nil {
			return nil, fmt.Errorf("browser plugin %q: %w", p.Name, err)
		}
		if plugin.Name == "" {
			plugin.Name = p.Name
		}
		out = append(out, plugin)
	}
	return out, nil
}
