package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"whatsnext/internal/config"
	appLog "whatsnext/internal/log"
)

// pageFiles are the templates rendered into the shared layout.
var pageFiles = []string{
	"home.html",
	"calendar.html",
	"locations.html",
	"location.html",
	"about.html",
	"contact.html",
	"error.html",
}

// page is what the layout template receives.
type page struct {
	Site  config.SiteConfig
	Title string
	// Nav marks the active header link: "calendar", "locations" or "".
	Nav  string
	Body any
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageFiles))
	for _, name := range pageFiles {
		t, err := template.New(name).ParseFS(fsys,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name,
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// render executes a page into a buffer first so a template error never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title, nav string, body any) {
	t, ok := s.pages[name]
	if !ok {
		appLog.Error("render: unknown page", fmt.Errorf("no template %q", name), "request_id", RequestID(r.Context()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	fullTitle := s.site.Title
	if title != "" {
		fullTitle = title + " · " + s.site.Title
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page{Site: s.site, Title: fullTitle, Nav: nav, Body: body}); err != nil {
		appLog.Error("render failed", err, "page", name, "request_id", RequestID(r.Context()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = buf.WriteTo(w)
}
