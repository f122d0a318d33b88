package plugins

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/vormadev/rstatic/kit/fsutil"
	"github.com/vormadev/rstatic/static"
)

var (
	extensions = []string{".js", ".jsx", ".ts", ".tsx", ".mjs"}
	builtDirs  = []string{"dist", ".", "src"}

	platformBases = []string{"platform.plugin", "platform"}
	appBases      = []string{"app.plugin", "app"}
)

const (
	deprecatedPlatformBase = "node.api"
	deprecatedAppBase      = "browser.api"

	// BuiltinScheme prefixes paths of plugins shipped inside this module.
	BuiltinScheme = "builtin:"
)

// Builtin describes a plugin bundled with the module. It is the last lookup.
type Builtin struct {
	Platform bool
	App      bool
}

// Resolver locates plugins on disk.
type Resolver struct {
	Paths    static.Paths
	Builtins map[string]Builtin
	Logger   *slog.Logger
	Exists   func(path string) bool // Default: fsutil
}

func (r Resolver) exists(path string) bool {
	if r.Exists != nil {
		return r.Exists(path)
	}
	ok, _ := fsutil.Exists(path)
	return ok
}

func (r Resolver) log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Lookups returns every directory tried for name, in order.
func (r Resolver) Lookups(name string) []string {
	clean := filepath.Clean(filepath.FromSlash(name))
	lookups := []string{
		filepath.Join(r.Paths.Plugins, clean),
		filepath.Join(r.Paths.Src, "plugins", clean),
		filepath.Join(r.Paths.NodeModules, clean),
	}
	if _, ok := r.Builtins[name]; ok {
		lookups = append(lookups, BuiltinScheme+name)
	}
	return lookups
}

// Resolve finds the plugin directory and its platform and app entry files.
func (r Resolver) Resolve(e Entry) (static.ResolvedPlugin, error) {
	tried := r.Lookups(e.Name)
	for _, dir := range tried {
		if strings.HasPrefix(dir, BuiltinScheme) {
			b := r.Builtins[e.Name]
			p := static.ResolvedPlugin{Name: e.Name, Path: dir, Options: e.Options}
			if b.Platform {
				p.Platform = dir + "/platform"
			}
			if b.App {
				p.App = dir + "/app"
			}
			r.log().Debug("Resolved builtin plugin", "name", e.Name)
			return p, nil
		}
		if !r.exists(dir) {
			continue
		}
		r.log().Info("Resolved plugin", "name", e.Name, "path", dir)
		return static.ResolvedPlugin{
			Name:     e.Name,
			Path:     dir,
			Options:  e.Options,
			Platform: r.entry(dir, platformBases, deprecatedPlatformBase),
			App:      r.entry(dir, appBases, deprecatedAppBase),
		}, nil
	}
	return static.ResolvedPlugin{}, &static.PluginNotResolvedError{Name: e.Name, Tried: tried}
}

// entry searches dir for the first matching entry file. A deprecated base name
// match logs a warning and yields "".
func (r Resolver) entry(dir string, bases []string, deprecated string) string {
	for _, sub := range builtDirs {
		for _, ext := range extensions {
			for _, base := range bases {
				candidate := filepath.Join(dir, sub, base+ext)
				if r.exists(candidate) {
					return candidate
				}
			}
		}
		for _, ext := range extensions {
			if r.exists(filepath.Join(dir, sub, deprecated+ext)) {
				r.log().Warn("Plugin is not compatible with this version and is not enabled",
					"path", dir,
					"found", deprecated+ext,
					"expected", bases[0]+ext,
				)
				return ""
			}
		}
	}
	return ""
}
