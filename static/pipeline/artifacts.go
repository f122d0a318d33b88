package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"

	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/plugins"
)

const (
	pluginsArtifactTemplate = `{{imports}}

export default [
{{evaluation}}
]
`
	templatesArtifactTemplate = `import { registerTemplate } from '@rstatic/core'
{{imports}}

{{evaluation}}
`
	defaultNotFoundName = "Template__Default__404"
)

// CreateBrowserArtifacts generates the plugin and template modules loaded by
// the browser bundle into state.Artifacts.
func CreateBrowserArtifacts(ctx context.Context, state static.State) (static.State, error) {
	state, err := createPluginArtifact(ctx, state)
	if err != nil {
		return state, err
	}
	return createTemplateArtifact(ctx, state)
}

func createPluginArtifact(ctx context.Context, state static.State) (static.State, error) {
	state, err := state.Plugins.BeforePluginArtifacts.Run(ctx, state)
	if err != nil {
		return state, err
	}
	dest := state.Config.Paths.Artifacts.Plugins

	var imports, evaluation []string
	seen := map[string]bool{}
	for _, p := range state.Data.Plugins {
		if !p.HasApp() || seen[p.App] {
			continue
		}
		seen[p.App] = true
		name := fmt.Sprintf("Plugin_%s%d", static.SanitizeName(p.Name), len(imports))
		options, err := json.Marshal(nonNil(p.Options))
		if err != nil {
			return state, fmt.Errorf("encode options of plugin %q: %w", p.Name, err)
		}
		imports = append(imports, fmt.Sprintf("import %s from '%s'", name, importPath(state.Config.Paths.Root, dest, p.App)))
		evaluation = append(evaluation, fmt.Sprintf("typeof %s === 'function' ? %s(%s) : %s", name, name, options, name))
	}
	state.Log().Debug("Outputting browser plugins", "count", len(imports))

	contents := strings.NewReplacer(
		"{{imports}}", strings.Join(imports, "\n"),
		"{{evaluation}}", strings.Join(evaluation, ",\n"),
	).Replace(pluginsArtifactTemplate)

	args, err := state.Plugins.BeforePluginArtifactsOutput.Run(ctx, static.ArtifactArgs{
		State:    state,
		Artifact: static.Artifact{Path: dest, Contents: contents},
	})
	if err != nil {
		return state, err
	}
	artifact, err := finishArtifact(args.State, args.Artifact)
	if err != nil {
		return state, err
	}
	state = args.State
	state.Artifacts.Plugins = artifact
	return state, nil
}

func createTemplateArtifact(ctx context.Context, state static.State) (static.State, error) {
	state, err := state.Plugins.BeforeTemplateArtifacts.Run(ctx, state)
	if err != nil {
		return state, err
	}
	paths := state.Config.Paths
	dest := paths.Artifacts.Templates
	defaultTemplate := DefaultNotFoundTemplate(paths)

	var imports, registrations, assignments []string
	names := map[string]string{}
	for _, r := range state.Data.Routes {
		if r.Template == "" {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("// assignTemplate('%s', '%s')", r.Path, r.Template))
		if _, ok := names[r.Template]; ok {
			continue
		}
		name := fmt.Sprintf("Template_%s%d", static.SanitizeName(filepath.Base(r.Template)), len(names))
		if r.Template == defaultTemplate {
			name = defaultNotFoundName
		}
		names[r.Template] = name
		imports = append(imports, fmt.Sprintf("import %s from '%s'", name, importPath(paths.Root, dest, r.Template)))
		registrations = append(registrations, fmt.Sprintf("registerTemplate('%s', %s)", r.Template, name))
	}
	state.Log().Debug("Outputting templates", "templates", len(names), "routes", len(state.Data.Routes))

	contents := strings.NewReplacer(
		"{{imports}}", strings.Join(imports, "\n"),
		"{{evaluation}}", strings.Join(append(registrations, assignments...), "\n"),
	).Replace(templatesArtifactTemplate)

	args, err := state.Plugins.BeforeTemplateArtifactsOutput.Run(ctx, static.ArtifactArgs{
		State:    state,
		Artifact: static.Artifact{Path: dest, Contents: contents},
	})
	if err != nil {
		return state, err
	}
	artifact, err := finishArtifact(args.State, args.Artifact)
	if err != nil {
		return state, err
	}
	state = args.State
	state.Artifacts.Templates = artifact
	return state, nil
}

// finishArtifact checks the generated module parses and minifies it outside
// development.
func finishArtifact(state static.State, a static.Artifact) (static.Artifact, error) {
	if _, err := js.Parse(parse.NewInputString(a.Contents), js.Options{}); err != nil {
		return a, fmt.Errorf("generated artifact %s does not parse: %w", a.Path, err)
	}
	if state.IsDev() {
		return a, nil
	}

	result := esbuild.Transform(a.Contents, esbuild.TransformOptions{
		Format:           esbuild.FormatESModule,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		Loader:           esbuild.LoaderJS,
		Target:           esbuild.ES2020,
	})
	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			state.Log().Error("esbuild error", "artifact", a.Path, "message", msg.Text)
		}
		return a, errors.New("esbuild transform failed")
	}
	a.Contents = string(result.Code)
	return a, nil
}

// importPath returns the module specifier for target, relative to the
// directory of the artifact at dest. Builtin plugin entries map to their
// package path.
func importPath(root, dest, target string) string {
	if rest, ok := strings.CutPrefix(target, plugins.BuiltinScheme); ok {
		return rest
	}
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, filepath.FromSlash(target))
	}
	rel, err := filepath.Rel(filepath.Dir(dest), abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
