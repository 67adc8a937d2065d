// Package templates renders notification emails into a shared HTML layout.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"time"
)

//go:embed html/*.html
var files embed.FS

const layoutFile = "html/layout.html"

// Site carries the marketplace identity shown in every email.
type Site struct {
	Name    string
	BaseURL string
}

// Renderer holds one parsed template per notification kind.
type Renderer struct {
	site      Site
	templates map[string]*template.Template
}

// view is what every template executes against.
type view struct {
	Site Site
	Data any
}

// New parses the embedded layout and notification templates.
func New(site Site) (*Renderer, error) {
	site.BaseURL = strings.TrimRight(site.BaseURL, "/")

	funcs := template.FuncMap{
		"date": formatDate,
		"link": func(p string) string { return site.BaseURL + "/" + strings.TrimLeft(p, "/") },
	}

	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(files, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	names, err := fs.Glob(files, "html/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	r := &Renderer{site: site, templates: make(map[string]*template.Template)}
	for _, name := range names {
		if name == layoutFile {
			continue
		}
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout: %w", err)
		}
		if _, err := t.ParseFS(files, name); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		r.templates[strings.TrimSuffix(path.Base(name), ".html")] = t
	}

	return r, nil
}

// Render executes the named notification template inside the layout.
func (r *Renderer) Render(name string, data any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", view{Site: r.site, Data: data}); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Site returns the site identity used by the renderer.
func (r *Renderer) Site() Site {
	return r.site
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "to be confirmed"
	}
	return t.Format("Mon 2 Jan 2006, 15:04")
}
