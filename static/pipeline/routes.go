package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static"
)

const (
	maxRouteDepth      = 64
	routeResolveLimit  = 16
	NotFoundPath       = "/404"
	DefaultNotFoundRef = "@rstatic/core/dist/app/components/Default404.js"
)

// FetchRoutes flattens the configured route tree, resolves every route's data
// and stores the result in state.Data.Routes.
func FetchRoutes(ctx context.Context, state static.State) (static.State, error) {
	state, err := state.Plugins.BeforeRoutes.Run(ctx, state)
	if err != nil {
		return state, err
	}
	log := state.Log()

	if state.Config.Routes == nil {
		log.Warn(`There are no routes to normalize or resolve. Make sure there is at least one route in the "routes" list of the configuration.`,
			"plugins", strings.Join(state.PluginNames(), ", "),
		)
		return state, nil
	}

	log.Info("Fetching routes...")

	records, err := flatten(ctx, state.Config.Routes, "", 0)
	if err != nil {
		return state, err
	}

	before, err := state.Plugins.BeforeRoutesResolve.Run(ctx, static.RoutesArgs{State: state, Routes: records})
	if err != nil {
		return state, err
	}

	resolved, err := resolveRoutes(ctx, before.Routes)
	if err != nil {
		return state, err
	}

	after, err := before.State.Plugins.AfterRoutes.Run(ctx, static.ResolvedRoutesArgs{State: before.State, Routes: dedupe(resolved)})
	if err != nil {
		return state, err
	}

	routes, err := finalize(after.State, after.Routes)
	if err != nil {
		return state, err
	}

	state = after.State
	state.Data.Routes = routes
	log.Info("Routes fetched", "count", len(routes))
	return state, nil
}

// flatten resolves a route list and its children depth-first. Each parent is
// followed by its descendants.
func flatten(ctx context.Context, v any, prefix string, depth int) ([]static.RouteRecord, error) {
	if depth > maxRouteDepth {
		return nil, fmt.Errorf("routes nested deeper than %d levels under %q", maxRouteDepth, prefix)
	}
	configs, err := static.ResolveRouteConfigs(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("resolve routes under %q: %w", routepath.Normalize(prefix), err)
	}

	var out []static.RouteRecord
	for _, rc := range configs {
		path := routepath.Join(prefix, rc.Path)
		data := rc.Data
		if data == nil {
			data = rc.GetData
		}
		out = append(out, static.RouteRecord{Path: path, Template: rc.Template, Data: data})

		if rc.Children == nil {
			continue
		}
		children, err := flatten(ctx, rc.Children, path, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}

// resolveRoutes resolves every route's data concurrently, keeping order.
func resolveRoutes(ctx context.Context, records []static.RouteRecord) ([]static.ResolvedRoute, error) {
	out := make([]static.ResolvedRoute, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(routeResolveLimit)
	for i, r := range records {
		g.Go(func() error {
			data, err := static.Resolve(gctx, r.Data)
			if err != nil {
				return fmt.Errorf("resolve data for route %s: %w", r.Path, err)
			}
			out[i] = static.ResolvedRoute{
				Path:     routepath.Normalize(r.Path),
				Template: r.Template,
				Data:     data,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// dedupe keeps one route per path. The last declaration wins but keeps the
// position of the first.
func dedupe(routes []static.ResolvedRoute) []static.ResolvedRoute {
	index := make(map[string]int, len(routes))
	out := make([]static.ResolvedRoute, 0, len(routes))
	for _, r := range routes {
		if i, ok := index[r.Path]; ok {
			out[i] = r
			continue
		}
		index[r.Path] = len(out)
		out = append(out, r)
	}
	return out
}

// finalize requires an index route and makes sure /404 has a template.
func finalize(state static.State, routes []static.ResolvedRoute) ([]static.ResolvedRoute, error) {
	var hasIndex bool
	notFound := -1
	for i, r := range routes {
		switch r.Path {
		case routepath.Root:
			hasIndex = true
		case NotFoundPath:
			notFound = i
		}
	}
	if !hasIndex {
		return nil, static.IndexRouteNotDefinedError{}
	}

	log := state.Log()
	switch {
	case notFound == -1:
		routes = append(routes, static.ResolvedRoute{
			Path:     NotFoundPath,
			Template: DefaultNotFoundTemplate(state.Config.Paths),
			Data:     map[string]any{},
		})
		log.Debug("There is no /404 route, using the default one. Add a route with path /404 to use your own.")
	case routes[notFound].Template == "":
		routes[notFound].Template = DefaultNotFoundTemplate(state.Config.Paths)
		log.Info(`The /404 route has no "template", using the default one.`)
	}
	return routes, nil
}

// DefaultNotFoundTemplate is the root-relative template of the default 404
// page.
func DefaultNotFoundTemplate(paths static.Paths) string {
	abs := filepath.Join(paths.NodeModules, filepath.FromSlash(DefaultNotFoundRef))
	rel, err := filepath.Rel(paths.Root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
