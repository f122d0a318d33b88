// Package static holds the data model shared by the build pipeline, the
// plugin registry, the data store and the dev server.
package static

import (
	"log/slog"
	"path/filepath"

	"github.com/vormadev/rstatic/kit/htmlutil"
)

type Stage string

const (
	StageDev  Stage = "dev"
	StageProd Stage = "prod"
)

type Paths struct {
	Root        string
	Src         string
	Pages       string
	Dist        string
	Temp        string
	Public      string
	Plugins     string
	NodeModules string
	Artifacts   ArtifactPaths
}

type ArtifactPaths struct {
	Dir       string
	Plugins   string
	Templates string
	HTML      string
}

// ResolvePaths fills unset paths with the defaults relative to p.Root.
func (p Paths) ResolvePaths() Paths {
	if p.Root == "" {
		p.Root = "."
	}
	abs := func(v, def string) string {
		if v == "" {
			v = def
		}
		if filepath.IsAbs(v) {
			return filepath.Clean(v)
		}
		return filepath.Join(p.Root, v)
	}
	p.Src = abs(p.Src, "src")
	p.Pages = abs(p.Pages, filepath.Join("src", "pages"))
	p.Dist = abs(p.Dist, "dist")
	p.Temp = abs(p.Temp, "tmp")
	p.Public = abs(p.Public, "public")
	p.Plugins = abs(p.Plugins, "plugins")
	p.NodeModules = abs(p.NodeModules, "node_modules")
	p.Artifacts.Dir = abs(p.Artifacts.Dir, "artifacts")
	if p.Artifacts.Plugins == "" {
		p.Artifacts.Plugins = filepath.Join(p.Artifacts.Dir, "app.plugins.js")
	}
	if p.Artifacts.Templates == "" {
		p.Artifacts.Templates = filepath.Join(p.Artifacts.Dir, "app.templates.js")
	}
	if p.Artifacts.HTML == "" {
		p.Artifacts.HTML = filepath.Join(p.Dist, "index.html")
	}
	return p
}

type DevServerConfig struct {
	Host        string
	Port        int
	MessagePort int
}

// Config is the authoring-time site configuration. Routes, Data and Plugins
// are resolvable values (see Resolve).
type Config struct {
	Paths     Paths
	Routes    any
	Data      any
	Plugins   any
	SiteRoot  string
	BasePath  string
	Version   string
	Document  Document
	Bundle    map[string]any
	DevServer DevServerConfig
	Silent    bool
	Verbose   bool
}

// RouteConfig is an authoring-time route. Data and Children are resolvable.
// GetData is deprecated and only consulted when Data is nil.
type RouteConfig struct {
	Path     string
	Template string
	Data     any
	GetData  any
	Children any
}

// RouteRecord is a flattened route whose data has not been resolved yet.
type RouteRecord struct {
	Path     string
	Template string
	Data     any
}

// ResolvedRoute has a normalized path and fully resolved data.
type ResolvedRoute struct {
	Path     string `json:"path"`
	Template string `json:"template,omitempty"`
	Data     any    `json:"data"`
}

// ResolvedPlugin describes where a plugin was found. An empty Platform or App
// means that side of the plugin is absent.
type ResolvedPlugin struct {
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Options  map[string]any `json:"options"`
	Platform string         `json:"platform,omitempty"`
	App      string         `json:"app,omitempty"`
}

func (p ResolvedPlugin) HasPlatform() bool { return p.Platform != "" }
func (p ResolvedPlugin) HasApp() bool      { return p.App != "" }

type Data struct {
	Site    map[string]any
	Routes  []ResolvedRoute
	Plugins []ResolvedPlugin
}

// Artifact is a generated browser module.
type Artifact struct {
	Path     string
	Contents string
}

type Artifacts struct {
	Plugins      Artifact
	Templates    Artifact
	IndexHTML    string
	BundleConfig map[string]any
}

// Document describes the HTML shell. Body elements render after the root
// element.
type Document struct {
	Lang  string
	Title string
	Head  []htmlutil.Element
	Body  []htmlutil.Element
}

// State is threaded through every pipeline step and plugin hook.
type State struct {
	Stage     Stage
	Config    Config
	Data      Data
	Plugins   Hooks
	Logger    *slog.Logger
	Artifacts Artifacts
}

func (s State) IsDev() bool {
	return s.Stage == StageDev
}

// Log returns s.Logger, or the default logger when unset.
func (s State) Log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// PluginNames lists the names of the resolved plugins.
func (s State) PluginNames() []string {
	names := make([]string, len(s.Data.Plugins))
	for i, p := range s.Data.Plugins {
		names[i] = p.Name
	}
	return names
}
