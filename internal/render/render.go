package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"

	"github.com/alphabot-ai/threadcache/internal/fingerprint"
	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/placeholder"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var paneTemplates = map[fingerprint.Style]string{
	fingerprint.StyleHTML:    "pane-html",
	fingerprint.StyleDebug:   "pane-html",
	fingerprint.StyleCompact: "pane-compact",
	fingerprint.StyleXML:     "pane-xml",
}

// Renderer turns annotated trees into markup. Viewer-dependent values are
// written as placeholders declared in the registry passed to Render.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("pane").Funcs(funcs(nil)).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse pane templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

type paneData struct {
	*Tree
	Style fingerprint.Style
	Debug bool
}

// Render executes the style's template for tree, declaring placeholders in
// reg.
func (r *Renderer) Render(tree *Tree, style fingerprint.Style, reg *placeholder.Registry) (string, error) {
	name, ok := paneTemplates[style]
	if !ok {
		return "", fmt.Errorf("no template for style %q", style)
	}

	tmpl, err := r.templates.Clone()
	if err != nil {
		return "", err
	}
	tmpl.Funcs(funcs(reg))

	var buf bytes.Buffer
	data := paneData{Tree: tree, Style: style, Debug: style == fingerprint.StyleDebug}
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s pane for story %s: %w", style, tree.Story.ID, err)
	}
	return buf.String(), nil
}

// RenderCanonical renders the tree returned by load as an anonymous viewer
// reading in lang would see it. load runs while rc carries the anonymous
// viewer, and rc's own viewer is back in place when RenderCanonical returns.
func (r *Renderer) RenderCanonical(rc *identity.RequestContext, lang string, style fingerprint.Style, load func() (*Tree, error)) (string, []placeholder.Declaration, error) {
	var (
		output string
		decls  []placeholder.Declaration
	)
	err := identity.WithSubstitutedIdentity(rc, identity.Anonymous(lang), func() error {
		tree, err := load()
		if err != nil {
			return err
		}
		reg := placeholder.NewRegistry()
		output, err = r.Render(tree, style, reg)
		if err != nil {
			return err
		}
		decls = reg.Declarations()
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return output, decls, nil
}

func funcs(reg *placeholder.Registry) template.FuncMap {
	return template.FuncMap{
		"ph": func(name, itemID, fallback string) string {
			if reg == nil {
				return ""
			}
			return reg.Declare(placeholder.Name(name), itemID, fallback).Marker()
		},
		"text":     placeholder.Escape,
		"points":   points,
		"children": children,
		"margin":   func(depth int) string { return strconv.Itoa(depth*24) + "px" },
	}
}

func points(score int) string {
	if score == 1 || score == -1 {
		return strconv.Itoa(score) + " point"
	}
	return strconv.Itoa(score) + " points"
}

func children(n int) string {
	if n == 1 {
		return "1 child"
	}
	return strconv.Itoa(n) + " children"
}
