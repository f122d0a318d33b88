// Package logging is a platform plugin that logs every hook as it runs.
package logging

import (
	"context"
	"slices"

	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/plugins"
)

const Name = "@rstatic/plugin-logging"

type Options struct {
	// Include limits logging to these hooks. Takes precedence over Exclude.
	Include []string `option:"include"`
	Exclude []string `option:"exclude"`
}

// Register adds the plugin to reg as a builtin.
func Register(reg *plugins.Registry) {
	reg.RegisterBuiltin(Name, plugins.Factory(New), false)
}

// New builds the plugin hooks from raw options.
func New(options map[string]any) (any, error) {
	var opts Options
	if err := plugins.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return Hooks(opts)
}

// Hooks returns logging hooks for the selected slots.
func Hooks(opts Options) (static.Hooks, error) {
	all := map[string]any{
		static.HookBeforeIndexHTML:               logged(static.HookBeforeIndexHTML, func(a static.DocumentArgs) static.State { return a.State }),
		static.HookBeforeIndexHTMLOutput:         logged(static.HookBeforeIndexHTMLOutput, func(a static.HTMLArgs) static.State { return a.State }),
		static.HookBeforeWebpack:                 logged(static.HookBeforeWebpack, func(a static.BundleArgs) static.State { return a.State }),
		static.HookAfterWebpack:                  logged(static.HookAfterWebpack, func(a static.BundleArgs) static.State { return a.State }),
		static.HookBeforeRoutes:                  logged(static.HookBeforeRoutes, self),
		static.HookBeforeRoutesResolve:           logged(static.HookBeforeRoutesResolve, func(a static.RoutesArgs) static.State { return a.State }),
		static.HookAfterRoutes:                   logged(static.HookAfterRoutes, func(a static.ResolvedRoutesArgs) static.State { return a.State }),
		static.HookBeforeSiteData:                logged(static.HookBeforeSiteData, self),
		static.HookAfterSiteData:                 logged(static.HookAfterSiteData, func(a static.SiteArgs) static.State { return a.State }),
		static.HookBeforeDirectories:             logged(static.HookBeforeDirectories, self),
		static.HookAfterDirectories:              logged(static.HookAfterDirectories, self),
		static.HookBeforePluginArtifacts:         logged(static.HookBeforePluginArtifacts, self),
		static.HookBeforePluginArtifactsOutput:   logged(static.HookBeforePluginArtifactsOutput, func(a static.ArtifactArgs) static.State { return a.State }),
		static.HookBeforeTemplateArtifacts:       logged(static.HookBeforeTemplateArtifacts, self),
		static.HookBeforeTemplateArtifactsOutput: logged(static.HookBeforeTemplateArtifactsOutput, func(a static.ArtifactArgs) static.State { return a.State }),
	}

	var hooks static.Hooks
	for name, fn := range all {
		if len(opts.Include) > 0 && !slices.Contains(opts.Include, name) {
			continue
		}
		if len(opts.Include) == 0 && slices.Contains(opts.Exclude, name) {
			continue
		}
		if _, err := hooks.Set(name, fn); err != nil {
			return static.Hooks{}, err
		}
	}
	return hooks, nil
}

func self(s static.State) static.State { return s }

func logged[T any](name string, state func(T) static.State) static.Hook[T] {
	return func(_ context.Context, in T) (T, error) {
		state(in).Log().Info(Name + ": " + name)
		return in, nil
	}
}
