package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vormadev/rstatic/kit/colorlog"
	"github.com/vormadev/rstatic/kit/htmlutil"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/plugins"
)

func newState(t *testing.T, stage static.Stage) static.State {
	t.Helper()
	root := t.TempDir()
	return static.State{
		Stage:   stage,
		Config:  static.Config{Paths: static.Paths{Root: root}.ResolvePaths()},
		Plugins: static.NewHooks(),
		Logger:  colorlog.Discard(),
	}
}

func routePaths(routes []static.ResolvedRoute) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.Path
	}
	return out
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	var calls []string
	step := func(name string, err error) Step {
		return func(_ context.Context, s static.State) (static.State, error) {
			calls = append(calls, name)
			s.Config.Version += name
			return s, err
		}
	}

	t.Run("threads state", func(t *testing.T) {
		calls = nil
		out, err := Run(ctx, static.State{}, step("a", nil), step("b", nil))
		require.NoError(t, err)
		assert.Equal(t, "ab", out.Config.Version)
	})

	t.Run("stops at the first error", func(t *testing.T) {
		calls = nil
		boom := errors.New("boom")
		_, err := Run(ctx, static.State{}, Named("first", step("a", boom)), step("b", nil))
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "first: ")
		assert.Equal(t, []string{"a"}, calls)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		calls = nil
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Run(cctx, static.State{}, step("a", nil))
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, calls)
	})
}

func TestFetchRoutes(t *testing.T) {
	ctx := context.Background()

	t.Run("flattens children and resolves data", func(t *testing.T) {
		s := newState(t, static.StageProd)
		s.Config.Routes = func() any {
			return []any{
				map[string]any{"path": "/", "template": "src/Home.js", "data": map[string]any{"title": "home"}},
				map[string]any{
					"path":     "blog",
					"template": "src/Blog.js",
					"getData":  func() (any, error) { return map[string]any{"posts": 2}, nil },
					"children": func(context.Context) (any, error) {
						return []static.RouteConfig{{Path: "first/", Template: "src/Post.js"}}, nil
					},
				},
			}
		}

		out, err := FetchRoutes(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, []string{"/", "/blog", "/blog/first", NotFoundPath}, routePaths(out.Data.Routes))
		assert.Equal(t, map[string]any{"posts": 2}, out.Data.Routes[1].Data)
		assert.Equal(t, DefaultNotFoundTemplate(s.Config.Paths), out.Data.Routes[3].Template)
		assert.Equal(t, "node_modules/"+DefaultNotFoundRef, out.Data.Routes[3].Template)
	})

	t.Run("later duplicates win in first position", func(t *testing.T) {
		s := newState(t, static.StageProd)
		s.Config.Routes = []static.RouteConfig{
			{Path: "/", Template: "a.js"},
			{Path: "/about", Template: "old.js"},
			{Path: "/404", Template: "nf.js"},
			{Path: "/about/", Template: "new.js"},
		}
		out, err := FetchRoutes(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, []string{"/", "/about", "/404"}, routePaths(out.Data.Routes))
		assert.Equal(t, "new.js", out.Data.Routes[1].Template)
		assert.Equal(t, "nf.js", out.Data.Routes[2].Template)
	})

	t.Run("404 without template gets the default", func(t *testing.T) {
		s := newState(t, static.StageProd)
		s.Config.Routes = []static.RouteConfig{{Path: "/", Template: "a.js"}, {Path: "/404"}}
		out, err := FetchRoutes(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, DefaultNotFoundTemplate(s.Config.Paths), out.Data.Routes[1].Template)
	})

	t.Run("index route is required", func(t *testing.T) {
		s := newState(t, static.StageProd)
		s.Config.Routes = []static.RouteConfig{{Path: "/about", Template: "a.js"}}
		_, err := FetchRoutes(ctx, s)
		assert.ErrorAs(t, err, &static.IndexRouteNotDefinedError{})
	})

	t.Run("no routes warns and keeps state", func(t *testing.T) {
		var buf bytes.Buffer
		s := newState(t, static.StageProd)
		s.Logger = colorlog.New("test", colorlog.Options{Output: &buf})
		out, err := FetchRoutes(ctx, s)
		require.NoError(t, err)
		assert.Empty(t, out.Data.Routes)
		assert.Contains(t, buf.String(), "no routes")
	})

	t.Run("hooks see and edit routes", func(t *testing.T) {
		s := newState(t, static.StageProd)
		s.Config.Routes = []static.RouteConfig{{Path: "/", Template: "a.js"}}
		s.Plugins.BeforeRoutesResolve = func(_ context.Context, in static.RoutesArgs) (static.RoutesArgs, error) {
			in.Routes = append(in.Routes, static.RouteRecord{Path: "extra", Template: "x.js"})
			return in, nil
		}
		s.Plugins.AfterRoutes = func(_ context.Context, in static.ResolvedRoutesArgs) (static.ResolvedRoutesArgs, error) {
			assert.Equal(t, []string{"/", "/extra"}, routePaths(in.Routes))
			return in, nil
		}
		out, err := FetchRoutes(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, []string{"/", "/extra", "/404"}, routePaths(out.Data.Routes))
	})

	t.Run("data errors carry the route", func(t *testing.T) {
		s := newState(t, static.StageProd)
		s.Config.Routes = []static.RouteConfig{{
			Path: "/",
			Data: func() (any, error) { return nil, errors.New("db down") },
		}}
		_, err := FetchRoutes(ctx, s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "route /")
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestFetchSiteData(t *testing.T) {
	ctx := context.Background()

	t.Run("no data runs only beforeSiteData", func(t *testing.T) {
		s := newState(t, static.StageProd)
		var before, after bool
		s.Plugins.BeforeSiteData = func(_ context.Context, in static.State) (static.State, error) {
			before = true
			return in, nil
		}
		s.Plugins.AfterSiteData = func(_ context.Context, in static.SiteArgs) (static.SiteArgs, error) {
			after = true
			return in, nil
		}
		_, err := FetchSiteData(ctx, s)
		require.NoError(t, err)
		assert.True(t, before)
		assert.False(t, after)
	})

	t.Run("resolves and merges", func(t *testing.T) {
		s := newState(t, static.StageProd)
		s.Data.Site = map[string]any{"keep": true, "meta": map[string]any{"a": 1}}
		s.Config.Data = func() any { return map[string]any{"meta": map[string]any{"b": 2}} }
		s.Plugins.AfterSiteData = func(_ context.Context, in static.SiteArgs) (static.SiteArgs, error) {
			in.Data["plugin"] = "yes"
			return in, nil
		}
		out, err := FetchSiteData(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"keep":   true,
			"meta":   map[string]any{"a": 1, "b": 2},
			"plugin": "yes",
		}, out.Data.Site)
	})
}

func TestFetchPlugins(t *testing.T) {
	reg := plugins.NewRegistry()
	reg.RegisterBuiltin("titles", plugins.Factory(func(options map[string]any) (any, error) {
		return map[string]any{
			static.HookAfterSiteData: func(in static.SiteArgs) static.SiteArgs {
				in.Data["title"] = options["title"]
				return in
			},
		}, nil
	}), true)

	s := newState(t, static.StageProd)
	s.Config.Plugins = []any{[]any{"titles", map[string]any{"title": "Docs"}}}
	s.Config.Data = map[string]any{}

	out, err := Run(context.Background(), s, FetchPlugins(reg), FetchSiteData)
	require.NoError(t, err)
	require.Len(t, out.Data.Plugins, 1)
	assert.Equal(t, "builtin:titles/app", out.Data.Plugins[0].App)
	assert.Equal(t, "Docs", out.Data.Site["title"])
}

func TestCreateBrowserArtifacts(t *testing.T) {
	ctx := context.Background()
	build := func(t *testing.T, stage static.Stage) static.State {
		s := newState(t, stage)
		root := s.Config.Paths.Root
		s.Data.Plugins = []static.ResolvedPlugin{
			{Name: "@scope/seo", App: filepath.Join(root, "plugins", "seo", "app.js"), Options: map[string]any{"x": 1}},
			{Name: "@scope/seo", App: filepath.Join(root, "plugins", "seo", "app.js")},
			{Name: "platform-only", Platform: filepath.Join(root, "plugins", "p", "platform.js")},
			{Name: "@rstatic/plugin-route-context", App: plugins.BuiltinScheme + "@rstatic/plugin-route-context/app"},
		}
		s.Data.Routes = []static.ResolvedRoute{
			{Path: "/", Template: "src/Home.js"},
			{Path: "/about", Template: "src/Home.js"},
			{Path: "/404", Template: DefaultNotFoundTemplate(s.Config.Paths)},
		}
		out, err := CreateBrowserArtifacts(ctx, s)
		require.NoError(t, err)
		return out
	}

	t.Run("development output", func(t *testing.T) {
		out := build(t, static.StageDev)

		p := out.Artifacts.Plugins
		assert.Equal(t, out.Config.Paths.Artifacts.Plugins, p.Path)
		assert.Equal(t, `import Plugin__scopeseo0 from '../plugins/seo/app.js'
import Plugin__rstaticplugin_route_context1 from '@rstatic/plugin-route-context/app'

export default [
typeof Plugin__scopeseo0 === 'function' ? Plugin__scopeseo0({"x":1}) : Plugin__scopeseo0,
typeof Plugin__rstaticplugin_route_context1 === 'function' ? Plugin__rstaticplugin_route_context1({}) : Plugin__rstaticplugin_route_context1
]
`, p.Contents)

		tpl := out.Artifacts.Templates.Contents
		assert.Contains(t, tpl, "import { registerTemplate } from '@rstatic/core'")
		assert.Contains(t, tpl, "import Template_Home_js0 from '../src/Home.js'")
		assert.Contains(t, tpl, "import Template__Default__404 from '../node_modules/"+DefaultNotFoundRef+"'")
		assert.Contains(t, tpl, "registerTemplate('src/Home.js', Template_Home_js0)")
		assert.Contains(t, tpl, "// assignTemplate('/about', 'src/Home.js')")
		assert.Equal(t, 1, strings.Count(tpl, "Template_Home_js0 from"))
	})

	t.Run("production output is minified", func(t *testing.T) {
		out := build(t, static.StageProd)
		tpl := out.Artifacts.Templates.Contents
		assert.Contains(t, tpl, "registerTemplate(")
		assert.NotContains(t, tpl, "assignTemplate")
		assert.NotContains(t, out.Artifacts.Plugins.Contents, "\n\n")
	})

	t.Run("output hooks can rewrite", func(t *testing.T) {
		s := newState(t, static.StageDev)
		s.Plugins.BeforePluginArtifactsOutput = func(_ context.Context, in static.ArtifactArgs) (static.ArtifactArgs, error) {
			in.Artifact.Contents = "export default []\n"
			return in, nil
		}
		out, err := CreateBrowserArtifacts(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, "export default []\n", out.Artifacts.Plugins.Contents)
	})

	t.Run("invalid output is rejected", func(t *testing.T) {
		s := newState(t, static.StageDev)
		s.Plugins.BeforeTemplateArtifactsOutput = func(_ context.Context, in static.ArtifactArgs) (static.ArtifactArgs, error) {
			in.Artifact.Contents = "registerTemplate('/', "
			return in, nil
		}
		_, err := CreateBrowserArtifacts(ctx, s)
		assert.Error(t, err)
	})
}

func TestCreateIndexHTML(t *testing.T) {
	s := newState(t, static.StageProd)
	s.Config.Document = static.Document{
		Title: "Docs & more",
		Head:  []htmlutil.Element{{Tag: "link", Attributes: map[string]string{"rel": "icon", "href": "/favicon.ico"}}},
		Body:  []htmlutil.Element{{Tag: "script", Attributes: map[string]string{"src": "/x.js"}}},
	}
	s.Plugins.BeforeIndexHTML = func(_ context.Context, in static.DocumentArgs) (static.DocumentArgs, error) {
		in.Document.Lang = "de"
		return in, nil
	}
	s.Plugins.BeforeIndexHTMLOutput = func(_ context.Context, in static.HTMLArgs) (static.HTMLArgs, error) {
		in.HTML += "<!-- done -->"
		return in, nil
	}

	out, err := CreateIndexHTML(context.Background(), s)
	require.NoError(t, err)
	html := out.Artifacts.IndexHTML
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>\n<html lang=\"de\">"))
	assert.Contains(t, html, `<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />`)
	assert.Contains(t, html, "<title>Docs &amp; more</title>")
	assert.Contains(t, html, `<link href="/favicon.ico" rel="icon" />`)
	assert.Less(t, strings.Index(html, `<div id="root"></div>`), strings.Index(html, `<script src="/x.js"></script>`))
	assert.True(t, strings.HasSuffix(html, "<!-- done -->"))
}

func TestRenderDocumentDefaults(t *testing.T) {
	html, err := RenderDocument(static.Document{})
	require.NoError(t, err)
	assert.Contains(t, html, `<html lang="en">`)
	assert.NotContains(t, html, "<title>")
}

func TestCreateBundleConfig(t *testing.T) {
	s := newState(t, static.StageDev)
	s.Config.Bundle = map[string]any{
		"resolve": map[string]any{"extensions": []any{".mdx"}},
		"output":  map[string]any{"publicPath": "/assets/"},
	}
	s.Plugins.AfterWebpack = func(_ context.Context, in static.BundleArgs) (static.BundleArgs, error) {
		in.Config["devtool"] = "source-map"
		return in, nil
	}

	out, err := CreateBundleConfig(context.Background(), s)
	require.NoError(t, err)
	cfg := out.Artifacts.BundleConfig
	assert.Equal(t, "development", cfg["mode"])
	assert.Equal(t, "source-map", cfg["devtool"])
	assert.Equal(t, map[string]any{
		"path":       s.Config.Paths.Dist,
		"filename":   BundleFilename,
		"publicPath": "/assets/",
	}, cfg["output"])
	assert.Equal(t, []any{".ts", ".tsx", ".js", ".jsx", ".mdx"}, cfg["resolve"].(map[string]any)["extensions"])
	assert.Equal(t, static.EnvModeDev, cfg["env"].(map[string]any)[static.EnvMode])
	assert.Equal(t, []any{".ts", ".tsx", ".js", ".jsx"}, defaultExtensions)
}

func TestOutputSteps(t *testing.T) {
	ctx := context.Background()
	s := newState(t, static.StageProd)
	paths := s.Config.Paths
	require.NoError(t, os.MkdirAll(filepath.Join(paths.Public, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(paths.Public, "img", "a.txt"), []byte("a"), 0o644))

	s.Config.Routes = []static.RouteConfig{
		{Path: "/", Template: "src/Home.js", Data: map[string]any{"n": 1}},
		{Path: "/docs/intro", Template: "src/Doc.js"},
	}
	s.Config.Data = map[string]any{"name": "site"}

	var dirs []string
	s.Plugins.AfterDirectories = func(_ context.Context, in static.State) (static.State, error) {
		dirs = append(dirs, in.Config.Paths.Dist)
		return in, nil
	}

	out, err := Run(ctx, s,
		FetchRoutes, FetchSiteData,
		CreateDirectories, CreateBrowserArtifacts, CreateIndexHTML,
		WriteArtifacts, ExportData, CopyPublic,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{paths.Dist}, dirs)
	assert.DirExists(t, paths.Temp)

	for _, f := range []string{paths.Artifacts.Plugins, paths.Artifacts.Templates, paths.Artifacts.HTML} {
		assert.FileExists(t, f)
	}
	html, err := os.ReadFile(paths.Artifacts.HTML)
	require.NoError(t, err)
	assert.Equal(t, out.Artifacts.IndexHTML, string(html))

	readJSON := func(path string) map[string]any {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var v map[string]any
		require.NoError(t, json.Unmarshal(raw, &v))
		return v
	}
	assert.Equal(t, map[string]any{"name": "site"}, readJSON(filepath.Join(paths.Dist, SiteInfoFile)))
	assert.Equal(t, map[string]any{"data": map[string]any{"n": float64(1)}, "template": "src/Home.js"},
		readJSON(filepath.Join(paths.Dist, RouteInfoFile)))
	assert.Equal(t, "src/Doc.js", readJSON(RouteInfoPath(paths.Dist, "/docs/intro"))["template"])
	assert.FileExists(t, filepath.Join(paths.Dist, "404", RouteInfoFile))
	assert.FileExists(t, filepath.Join(paths.Dist, "img", "a.txt"))
}

func TestRouteInfoPath(t *testing.T) {
	assert.Equal(t, filepath.Join("dist", RouteInfoFile), RouteInfoPath("dist", "/"))
	assert.Equal(t, filepath.Join("dist", "a", "b", RouteInfoFile), RouteInfoPath("dist", "a/b/"))
}

func TestReleaseSteps(t *testing.T) {
	s := newState(t, static.StageProd)
	s.Config.Routes = []static.RouteConfig{{Path: "/", Template: "src/Home.js"}}

	out, err := Run(context.Background(), s, ReleaseSteps(plugins.NewRegistry())...)
	require.NoError(t, err)
	assert.Equal(t, "production", out.Artifacts.BundleConfig["mode"])
	assert.FileExists(t, filepath.Join(s.Config.Paths.Dist, RouteInfoFile))
	assert.FileExists(t, filepath.Join(s.Config.Paths.Dist, SiteInfoFile))
	assert.FileExists(t, s.Config.Paths.Artifacts.HTML)
}
