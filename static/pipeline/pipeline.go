// Package pipeline turns a site configuration into resolved data and
// browser artifacts. Each step receives the state, runs the plugin hooks
// around its own work and returns the next state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/plugins"
)

// Step is a single pipeline stage.
type Step func(ctx context.Context, state static.State) (static.State, error)

// Run threads state through steps in order, stopping at the first error.
func Run(ctx context.Context, state static.State, steps ...Step) (static.State, error) {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		next, err := step(ctx, state)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

// Named wraps step so its duration is logged at debug level and its errors
// carry name.
func Named(name string, step Step) Step {
	return func(ctx context.Context, state static.State) (static.State, error) {
		start := time.Now()
		next, err := step(ctx, state)
		if err != nil {
			return state, fmt.Errorf("%s: %w", name, err)
		}
		next.Log().Debug("Step finished", "step", name, "duration", time.Since(start))
		return next, nil
	}
}

// DataSteps resolves plugins, routes and site data.
func DataSteps(reg *plugins.Registry) []Step {
	return []Step{
		Named("fetchPlugins", FetchPlugins(reg)),
		Named("fetchRoutes", FetchRoutes),
		Named("fetchSiteData", FetchSiteData),
	}
}

// BuildSteps produces every artifact of a build after the data steps.
func BuildSteps(reg *plugins.Registry) []Step {
	return append(DataSteps(reg),
		Named("createDirectories", CreateDirectories),
		Named("createBrowserArtifacts", CreateBrowserArtifacts),
		Named("createIndexHtml", CreateIndexHTML),
		Named("createBundleConfig", CreateBundleConfig),
	)
}

// DevSteps builds the artifacts needed by the dev server and writes them.
func DevSteps(reg *plugins.Registry) []Step {
	return append(DataSteps(reg),
		Named("createDirectories", CreateDirectories),
		Named("createBrowserArtifacts", CreateBrowserArtifacts),
		Named("createIndexHtml", CreateIndexHTML),
		Named("writeArtifacts", WriteArtifacts),
	)
}

// ReleaseSteps runs a full build and exports the route data and public files
// into dist.
func ReleaseSteps(reg *plugins.Registry) []Step {
	return append(BuildSteps(reg),
		Named("writeArtifacts", WriteArtifacts),
		Named("exportData", ExportData),
		Named("copyPublic", CopyPublic),
	)
}
