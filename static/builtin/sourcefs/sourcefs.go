// Package sourcefs is a platform plugin that creates a route for every page
// file found under a source directory.
package sourcefs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vormadev/rstatic/kit/fsutil"
	"github.com/vormadev/rstatic/kit/routepath"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/plugins"
)

const (
	Name = "@rstatic/plugin-source-filesystem"

	DefaultLocation = "./pages"
	DefaultPattern  = "**/*"
)

var templateRe = regexp.MustCompile(`\.[mjt]sx?$`)

type Options struct {
	// Location is relative to the src path and must stay inside it.
	Location string `option:"location"`
	// Pattern is a doublestar glob matched against files under Location.
	Pattern string `option:"pattern"`
	// Overwrite lets discovered routes replace configured routes with the same
	// path. By default configured routes win.
	Overwrite bool `option:"overwrite"`
	Debug     bool `option:"debug"`

	ShouldCreateRoute func(static.RouteRecord) bool               `option:"shouldCreateRoute"`
	CreateRoute       func(static.RouteRecord) static.RouteRecord `option:"createRoute"`
}

func Register(reg *plugins.Registry) {
	reg.RegisterBuiltin(Name, plugins.Factory(New), false)
}

func New(options map[string]any) (any, error) {
	var opts Options
	if err := plugins.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return Hooks(opts), nil
}

func Hooks(opts Options) static.Hooks {
	if opts.Location == "" {
		opts.Location = DefaultLocation
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.ShouldCreateRoute == nil {
		opts.ShouldCreateRoute = func(r static.RouteRecord) bool { return templateRe.MatchString(r.Template) }
	}
	if opts.CreateRoute == nil {
		opts.CreateRoute = func(r static.RouteRecord) static.RouteRecord { return r }
	}
	return static.Hooks{
		BeforeRoutesResolve: func(_ context.Context, args static.RoutesArgs) (static.RoutesArgs, error) {
			return beforeRoutesResolve(opts, args)
		},
	}
}

func beforeRoutesResolve(opts Options, args static.RoutesArgs) (static.RoutesArgs, error) {
	log := args.State.Log()
	paths := args.State.Config.Paths

	dir, ok := sourceDir(opts, paths, log)
	if !ok {
		return args, nil
	}

	files, err := doublestar.Glob(os.DirFS(dir), opts.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return args, fmt.Errorf("%s: glob %q in %s: %w", Name, opts.Pattern, dir, err)
	}
	if opts.Debug {
		log.Debug(Name+": listed entries", "count", len(files), "dir", dir)
	}

	var found []static.RouteRecord
	for _, rel := range files {
		noExt := strings.TrimSuffix(rel, path.Ext(rel))
		template, err := filepath.Rel(paths.Root, filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return args, fmt.Errorf("%s: %w", Name, err)
		}
		route := static.RouteRecord{
			Path:     routepath.Normalize(noExt),
			Template: filepath.ToSlash(template),
		}
		if opts.Debug {
			log.Debug(Name, "path", route.Path, "template", route.Template)
		}
		if opts.ShouldCreateRoute(route) {
			found = append(found, opts.CreateRoute(route))
		}
	}
	if opts.Debug {
		log.Debug(Name+": creating routes", "count", len(found))
	}

	// Later routes win when paths collide.
	if opts.Overwrite {
		args.Routes = append(args.Routes, found...)
	} else {
		args.Routes = append(found, args.Routes...)
	}
	return args, nil
}

// sourceDir resolves the location, falling back to the containing directory
// of a file. It reports false when the plugin should be skipped.
func sourceDir(opts Options, paths static.Paths, log *slog.Logger) (string, bool) {
	dir := filepath.Join(paths.Src, filepath.FromSlash(opts.Location))

	info, err := os.Stat(dir)
	if err != nil {
		log.Warn(Name+": location is not accessible, plugin ignored", "location", opts.Location, "error", err)
		return "", false
	}
	if !info.IsDir() {
		log.Warn(Name+": location is a file, using its directory instead", "location", opts.Location)
		dir = filepath.Dir(dir)
	}
	if !fsutil.IsWithin(paths.Src, dir) {
		log.Warn(Name+": location must be inside the src path, plugin ignored", "location", opts.Location, "src", paths.Src)
		return "", false
	}
	return dir, true
}
