package pipeline

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/vormadev/rstatic/kit/htmlutil"
	"github.com/vormadev/rstatic/static"
)

// RootElementID is the id of the element the app renders into.
const RootElementID = "root"

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="UTF-8" />
<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
<meta name="disabled-adaptations" content="watch" />
{{- with .Title}}
<title>{{.}}</title>
{{- end}}
{{- range .Head}}
{{.}}
{{- end}}
</head>
<body>
<div id="{{.RootID}}"></div>
{{- range .Body}}
{{.}}
{{- end}}
</body>
</html>
`))

type documentView struct {
	Lang   string
	Title  string
	RootID string
	Head   []template.HTML
	Body   []template.HTML
}

// RenderDocument renders the HTML shell for doc.
func RenderDocument(doc static.Document) (string, error) {
	head, err := htmlutil.RenderElements(doc.Head)
	if err != nil {
		return "", fmt.Errorf("render head: %w", err)
	}
	body, err := htmlutil.RenderElements(doc.Body)
	if err != nil {
		return "", fmt.Errorf("render body: %w", err)
	}
	lang := doc.Lang
	if lang == "" {
		lang = "en"
	}

	var b strings.Builder
	err = documentTemplate.Execute(&b, documentView{
		Lang:   lang,
		Title:  doc.Title,
		RootID: RootElementID,
		Head:   head,
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// CreateIndexHTML renders the configured document into state.Artifacts.IndexHTML.
func CreateIndexHTML(ctx context.Context, state static.State) (static.State, error) {
	doc, err := state.Plugins.BeforeIndexHTML.Run(ctx, static.DocumentArgs{State: state, Document: state.Config.Document})
	if err != nil {
		return state, err
	}
	html, err := RenderDocument(doc.Document)
	if err != nil {
		return state, err
	}
	out, err := doc.State.Plugins.BeforeIndexHTMLOutput.Run(ctx, static.HTMLArgs{State: doc.State, HTML: html})
	if err != nil {
		return state, err
	}
	state = out.State
	state.Artifacts.IndexHTML = out.HTML
	return state, nil
}
