// Package store serves route and site data with a suspend-on-miss contract:
// reads return the loaded value or a pending handle, never block.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vormadev/rstatic/kit/deepmerge"
	rr "github.com/vormadev/rstatic/kit/remoteresource"
	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/reload"
)

// NotFoundPath is the route served in place of unknown paths.
const NotFoundPath = "/404"

const siteKey = "site"

// RouteFetcher returns the raw route info for a normalized path. A missing
// route is reported as a *static.FetchError with status 404.
type RouteFetcher interface {
	FetchRoute(ctx context.Context, path string) (any, error)
}

// SiteFetcher returns the raw site data.
type SiteFetcher interface {
	FetchSite(ctx context.Context) (any, error)
}

// Clearer is implemented by fetchers that keep their own cache.
type Clearer interface {
	ClearAll()
}

type Options struct {
	Routes RouteFetcher
	Site   SiteFetcher

	Exclusions *PrefetchExclusions
	Logger     *slog.Logger
	// Dev logs validation failures as warnings.
	Dev   bool
	Cache rr.CacheOptions
}

type Store struct {
	opts   Options
	routes *rr.Resource[string, Payload, RouteInfo]
	site   *rr.Resource[string, any, map[string]any]
}

func New(opts Options) (*Store, error) {
	if opts.Routes == nil || opts.Site == nil {
		return nil, errors.New("store: Routes and Site fetchers are required")
	}
	if opts.Exclusions == nil {
		opts.Exclusions = &PrefetchExclusions{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{opts: opts}

	var err error
	s.routes, err = rr.New(rr.Options[string, Payload, RouteInfo]{
		CreateRequest: func(_ context.Context, path string) (string, error) {
			return path, nil
		},
		ExecuteRequest:    s.fetchRoute,
		TransformResponse: func(_ context.Context, p Payload) (RouteInfo, error) { return infoFor(p), nil },
		NewPolicy:         rr.Retain[string, Payload],
		Cache:             opts.Cache,
	})
	if err != nil {
		return nil, err
	}

	s.site, err = rr.New(rr.Options[string, any, map[string]any]{
		CreateRequest: func(_ context.Context, key string) (string, error) {
			return key, nil
		},
		ExecuteRequest: func(ctx context.Context, _ string) (any, error) {
			return opts.Site.FetchSite(ctx)
		},
		TransformResponse: func(_ context.Context, raw any) (map[string]any, error) {
			data, err := static.ToObject(raw)
			if err != nil {
				return nil, fmt.Errorf("expected site data to be an object: %w", err)
			}
			return data, nil
		},
		NewPolicy: rr.Retain[string, any],
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// fetchRoute carries the path inside the payload so TransformResponse can
// build the right variant.
func (s *Store) fetchRoute(ctx context.Context, path string) (Payload, error) {
	raw, err := s.opts.Routes.FetchRoute(ctx, path)
	if err != nil {
		return Payload{}, err
	}
	p, err := ValidatePayload(path, raw)
	if err != nil {
		if s.opts.Dev {
			s.opts.Logger.Warn("Route returned invalid data", "path", path, "error", err)
		}
		return Payload{}, err
	}
	p.path = path
	return p, nil
}

func infoFor(p Payload) RouteInfo {
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	if p.path == NotFoundPath {
		return NotFound{Path: p.path, Data: p.Data, Template: p.Template}
	}
	return Found{Path: p.path, Data: p.Data, Template: p.Template}
}

// Exclusions returns the prefetch exclusion list.
func (s *Store) Exclusions() *PrefetchExclusions {
	return s.opts.Exclusions
}

// Info returns the stored RouteInfo for path. A not-found failure for any path
// other than /404 reads the /404 route instead. Excluded paths resolve to an
// empty route without fetching.
func (s *Store) Info(ctx context.Context, path string) rr.Result[RouteInfo] {
	p := routepath.Normalize(path)
	if s.opts.Exclusions.Contains(p) {
		return rr.Ready[RouteInfo](Found{Path: p, Data: map[string]any{}})
	}

	res := s.routes.Read(ctx, p)
	if !res.IsFailed() {
		return res
	}
	err := res.Err()
	if p == NotFoundPath || !static.IsNotFound(err) {
		return rr.Ready[RouteInfo](Errored{Path: p, Err: err})
	}

	fallback := s.routes.Read(ctx, NotFoundPath)
	switch fallback.Status() {
	case rr.StatusPending:
		return fallback
	case rr.StatusFailed:
		return rr.Ready[RouteInfo](Errored{Path: p, Err: &static.NotFoundFallbackError{Path: p, Err: fallback.Err()}})
	}
	return fallback
}

// SiteData returns the site data.
func (s *Store) SiteData(ctx context.Context) rr.Result[map[string]any] {
	return s.site.Read(ctx, siteKey)
}

// RouteData returns the site data deep-merged with the route's data. Route
// data wins on conflicts.
func (s *Store) RouteData(ctx context.Context, path string) rr.Result[map[string]any] {
	site := s.SiteData(ctx)
	info := s.Info(ctx, path)

	switch {
	case site.IsFailed():
		return rr.Failed[map[string]any](site.Err())
	case site.IsPending():
		return rr.Suspend[map[string]any](site.Pending())
	case info.IsPending():
		return rr.Suspend[map[string]any](info.Pending())
	}

	data, _, err := content(info.Value())
	if err != nil {
		return rr.Failed[map[string]any](err)
	}
	return rr.Ready(deepmerge.Merge(site.Value(), data))
}

// RouteTemplate returns the template of the route served for path.
func (s *Store) RouteTemplate(ctx context.Context, path string) rr.Result[string] {
	info := s.Info(ctx, path)
	if info.IsPending() {
		return rr.Suspend[string](info.Pending())
	}
	_, template, err := content(info.Value())
	if err != nil {
		return rr.Failed[string](err)
	}
	return rr.Ready(template)
}

// Prefetch loads path ahead of navigation. Excluded paths are skipped.
func (s *Store) Prefetch(ctx context.Context, path string) error {
	p := routepath.Normalize(path)
	if s.opts.Exclusions.Contains(p) {
		return nil
	}
	if err := s.site.Preload(ctx, siteKey); err != nil {
		return err
	}
	info, err := rr.Await(ctx, func() rr.Result[RouteInfo] { return s.Info(ctx, p) })
	if err != nil {
		return err
	}
	_, _, err = content(info)
	return err
}

// Reload drops every loaded and loading entry.
func (s *Store) Reload() {
	s.routes.ClearAll()
	s.site.ClearAll()
	if c, ok := s.opts.Routes.(Clearer); ok {
		c.ClearAll()
	}
	if c, ok := s.opts.Site.(Clearer); ok {
		c.ClearAll()
	}
	s.opts.Logger.Debug("Route and site data cleared")
}

// Attach subscribes the store to bus and returns the unsubscribe function.
func (s *Store) Attach(bus *reload.Bus) func() {
	return bus.Subscribe(s.Reload)
}
