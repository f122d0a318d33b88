package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/vormadev/rstatic/kit/fsutil"
	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/store"
)

const (
	RouteInfoFile = "route-info.json"
	SiteInfoFile  = "site-info.json"
)

// CreateDirectories ensures the output directories exist.
func CreateDirectories(ctx context.Context, state static.State) (static.State, error) {
	state, err := state.Plugins.BeforeDirectories.Run(ctx, state)
	if err != nil {
		return state, err
	}
	paths := state.Config.Paths
	if err := fsutil.EnsureDirs(paths.Dist, paths.Temp, paths.Artifacts.Dir); err != nil {
		return state, err
	}
	return state.Plugins.AfterDirectories.Run(ctx, state)
}

// WriteArtifacts persists the generated browser modules and the index HTML.
func WriteArtifacts(_ context.Context, state static.State) (static.State, error) {
	a := state.Artifacts
	files := []struct {
		path     string
		contents string
	}{
		{a.Plugins.Path, a.Plugins.Contents},
		{a.Templates.Path, a.Templates.Contents},
		{state.Config.Paths.Artifacts.HTML, a.IndexHTML},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		state.Log().Debug("Writing artifact", "path", f.path, "bytes", len(f.contents))
		if err := fsutil.WriteFile(f.path, []byte(f.contents)); err != nil {
			return state, err
		}
	}
	return state, nil
}

// ExportData writes site-info.json and one route-info.json per route into the
// dist directory, the layout read by the HTTP fetcher outside development.
func ExportData(_ context.Context, state static.State) (static.State, error) {
	dist := state.Config.Paths.Dist
	if err := writeJSON(filepath.Join(dist, SiteInfoFile), nonNil(state.Data.Site)); err != nil {
		return state, err
	}
	for _, r := range state.Data.Routes {
		data, err := static.ToObject(r.Data)
		if err != nil {
			return state, fmt.Errorf("route %s: %w", r.Path, err)
		}
		payload := store.Payload{Data: nonNil(data), Template: r.Template}
		if err := writeJSON(RouteInfoPath(dist, r.Path), payload); err != nil {
			return state, err
		}
	}
	state.Log().Info("Exported route data", "routes", len(state.Data.Routes), "dir", dist)
	return state, nil
}

// RouteInfoPath is the file holding the route info of path under dist.
func RouteInfoPath(dist, path string) string {
	segments := routepath.Segments(routepath.Normalize(path))
	return filepath.Join(append(append([]string{dist}, segments...), RouteInfoFile)...)
}

// CopyPublic copies the public directory into dist when it exists.
func CopyPublic(_ context.Context, state static.State) (static.State, error) {
	paths := state.Config.Paths
	if !fsutil.IsDir(paths.Public) {
		return state, nil
	}
	if err := fsutil.CopyDir(paths.Public, paths.Dist); err != nil {
		return state, fmt.Errorf("copy public files: %w", err)
	}
	return state, nil
}

func writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return fsutil.WriteFile(path, b)
}
