package pipeline

import (
	"context"
	"slices"

	"github.com/vormadev/rstatic/kit/deepmerge"
	"github.com/vormadev/rstatic/static"
)

const BundleFilename = "static.bundle.js"

var defaultExtensions = []any{".ts", ".tsx", ".js", ".jsx"}

// BundleConfig builds the bundler configuration for state. User settings
// override the defaults, except resolve.extensions which are appended.
func BundleConfig(state static.State, user map[string]any) map[string]any {
	mode, env := "production", static.EnvModeProd
	if state.IsDev() {
		mode, env = "development", static.EnvModeDev
	}
	paths := state.Config.Paths

	base := map[string]any{
		"mode": mode,
		"output": map[string]any{
			"path":     paths.Dist,
			"filename": BundleFilename,
		},
		"resolve": map[string]any{
			"extensions": slices.Clone(defaultExtensions),
		},
		"html": map[string]any{
			"template": paths.Artifacts.HTML,
			"inject":   true,
			"hash":     true,
		},
		"artifacts": map[string]any{
			"plugins":   paths.Artifacts.Plugins,
			"templates": paths.Artifacts.Templates,
		},
		"env": map[string]any{
			static.EnvMode: env,
		},
	}

	merged := deepmerge.Merge(base, user)
	if resolve, ok := user["resolve"].(map[string]any); ok {
		if extra, ok := resolve["extensions"].([]any); ok {
			exts := append(slices.Clone(defaultExtensions), extra...)
			merged["resolve"].(map[string]any)["extensions"] = exts
		}
	}
	return merged
}

// CreateBundleConfig stores the bundler configuration in
// state.Artifacts.BundleConfig, running beforeWebpack on the user settings
// and afterWebpack on the result.
func CreateBundleConfig(ctx context.Context, state static.State) (static.State, error) {
	before, err := state.Plugins.BeforeWebpack.Run(ctx, static.BundleArgs{State: state, Config: state.Config.Bundle})
	if err != nil {
		return state, err
	}
	cfg := BundleConfig(before.State, before.Config)

	after, err := before.State.Plugins.AfterWebpack.Run(ctx, static.BundleArgs{State: before.State, Config: cfg})
	if err != nil {
		return state, err
	}
	state = after.State
	state.Artifacts.BundleConfig = after.Config
	return state, nil
}
