// Package routecontext is a browser plugin that exposes the current route
// path on the request context.
package routecontext

import (
	"context"
	"net/http"

	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static/browser"
	"github.com/vormadev/rstatic/static/plugins"
)

const Name = "@rstatic/plugin-route-context"

type ctxKey struct{}

// Register adds the plugin to both registries. It has no platform side.
func Register(platform *plugins.Registry, reg *browser.Registry) {
	platform.RegisterBuiltin(Name, nil, true)
	reg.Register(Name, New)
}

func New(map[string]any) (browser.Plugin, error) {
	return Plugin(), nil
}

func Plugin() browser.Plugin {
	return browser.Plugin{
		Name:  Name,
		Hooks: browser.Hooks{Root: Root},
	}
}

// Root stores the normalized request path on the request context.
func Root(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKey{}, routepath.New(r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the route path stored by Root, or false.
func FromContext(ctx context.Context) (routepath.Path, bool) {
	p, ok := ctx.Value(ctxKey{}).(routepath.Path)
	return p, ok
}
