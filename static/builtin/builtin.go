// Package builtin registers the plugins shipped with rstatic.
package builtin

import (
	"github.com/vormadev/rstatic/static/browser"
	"github.com/vormadev/rstatic/static/builtin/logging"
	"github.com/vormadev/rstatic/static/builtin/routecontext"
	"github.com/vormadev/rstatic/static/builtin/sourcefs"
	"github.com/vormadev/rstatic/static/plugins"
)

// Register adds every builtin plugin to the given registries.
func Register(platform *plugins.Registry, app *browser.Registry) {
	logging.Register(platform)
	sourcefs.Register(platform)
	routecontext.Register(platform, app)
}

// Registries returns fresh registries with every builtin registered.
func Registries() (*plugins.Registry, *browser.Registry) {
	platform, app := plugins.NewRegistry(), browser.NewRegistry()
	Register(platform, app)
	return platform, app
}
