// Package htmlutil renders individual HTML elements with escaped attributes
// and content.
package htmlutil

import (
	"fmt"
	"html/template"
	"maps"
	"slices"
	"strings"
)

type Element struct {
	Tag                 string            `json:"tag,omitempty"`
	Attributes          map[string]string `json:"attributes,omitempty"`
	AttributesKnownSafe map[string]string `json:"attributesKnownSafe,omitempty"`
	BooleanAttributes   []string          `json:"booleanAttributes,omitempty"`
	TextContent         string            `json:"textContent,omitempty"`
	DangerousInnerHTML  string            `json:"dangerousInnerHTML,omitempty"`
	SelfClosing         bool              `json:"-"`
}

// see https://html.spec.whatwg.org/multipage/syntax.html#void-elements
var voidTags = []string{
	"area", "base", "br", "col", "embed", "hr", "img",
	"input", "link", "meta", "source", "track", "wbr",
}

func RenderElement(el *Element) (template.HTML, error) {
	var b strings.Builder
	if err := render(el, &b); err != nil {
		return "", fmt.Errorf("htmlutil: render element: %w", err)
	}
	return template.HTML(b.String()), nil
}

// RenderElements renders each element in order.
func RenderElements(els []Element) ([]template.HTML, error) {
	out := make([]template.HTML, 0, len(els))
	for i := range els {
		h, err := RenderElement(&els[i])
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// JSONScript returns a script element carrying data as JSON. The payload is
// escaped so it cannot close the script tag.
func JSONScript(id string, payload []byte) Element {
	safe := strings.NewReplacer("<", `\u003c`, ">", `\u003e`, "&", `\u0026`).Replace(string(payload))
	return Element{
		Tag:                 "script",
		Attributes:          map[string]string{"id": id},
		AttributesKnownSafe: map[string]string{"type": "application/json"},
		DangerousInnerHTML:  safe,
	}
}

func render(el *Element, b *strings.Builder) error {
	tag := template.HTMLEscapeString(el.Tag)
	if tag == "" {
		return fmt.Errorf("element has no tag")
	}

	b.WriteString("<")
	b.WriteString(tag)

	attrs := attributes(el)
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		fmt.Fprintf(b, ` %s="%s"`, k, attrs[k])
	}
	for _, a := range el.BooleanAttributes {
		b.WriteString(" ")
		b.WriteString(template.HTMLEscapeString(a))
	}

	if el.SelfClosing || slices.Contains(voidTags, tag) {
		b.WriteString(" />")
		return nil
	}
	b.WriteString(">")
	b.WriteString(innerHTML(el))
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString(">")
	return nil
}

func attributes(el *Element) map[string]string {
	out := make(map[string]string, len(el.Attributes)+len(el.AttributesKnownSafe))
	for k, v := range el.Attributes {
		out[template.HTMLEscapeString(k)] = template.HTMLEscapeString(v)
	}
	for k, v := range el.AttributesKnownSafe {
		out[template.HTMLEscapeString(k)] = v
	}
	return out
}

func innerHTML(el *Element) string {
	if el.DangerousInnerHTML != "" {
		return el.DangerousInnerHTML
	}
	return template.HTMLEscapeString(el.TextContent)
}
