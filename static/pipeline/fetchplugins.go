package pipeline

import (
	"context"

	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/plugins"
)

// FetchPlugins normalizes the configured plugins, resolves them on disk (or
// among the builtins of reg) and composes their hooks into state.Plugins.
func FetchPlugins(reg *plugins.Registry) Step {
	return func(ctx context.Context, state static.State) (static.State, error) {
		log := state.Log()

		entries, err := plugins.Normalize(ctx, state.Config.Plugins)
		if err != nil {
			return state, err
		}

		resolver := plugins.Resolver{
			Paths:    state.Config.Paths,
			Builtins: reg.Builtins(),
			Logger:   log,
		}
		resolved := make([]static.ResolvedPlugin, 0, len(entries))
		for _, e := range entries {
			p, err := resolver.Resolve(e)
			if err != nil {
				return state, err
			}
			resolved = append(resolved, p)
		}

		hooks, err := plugins.Compose(ctx, reg, resolved)
		if err != nil {
			return state, err
		}

		state.Data.Plugins = resolved
		state.Plugins = hooks
		log.Debug("Plugins loaded", "count", len(resolved), "names", state.PluginNames())
		return state, nil
	}
}
