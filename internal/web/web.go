package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"whatsnext/internal/config"
	appLog "whatsnext/internal/log"
	"whatsnext/internal/metrics"
	"whatsnext/internal/model"
)

// Catalog is the read pipeline the handlers render from. Every call is
// expected to reach the content API; the server keeps no copies.
type Catalog interface {
	Events(ctx context.Context) ([]model.EventView, error)
	Locations(ctx context.Context) ([]model.LocationView, []model.EventView, error)
	Location(ctx context.Context, uid string) (model.LocationView, []model.EventView, error)
}

// Options configures a Server.
type Options struct {
	Catalog  Catalog
	Site     config.SiteConfig
	Location *time.Location
	Metrics  *metrics.Metrics
	// Now defaults to time.Now; day labels ("Today") are relative to it.
	Now func() time.Time
}

// Server renders the calendar pages and serves the JSON, iCalendar and
// metrics endpoints.
type Server struct {
	catalog Catalog
	site    config.SiteConfig
	loc     *time.Location
	metrics *metrics.Metrics
	now     func() time.Time

	router *mux.Router
	pages  map[string]*template.Template
}

// embeddedAssets holds the page templates and the stylesheet/script served
// under /static/.
//
//go:embed all:static templates
var embeddedAssets embed.FS

// NewServer constructs a new Server. Templates are parsed here, so a broken
// template fails at startup rather than on the first request.
func NewServer(opts Options) (*Server, error) {
	s := &Server{
		catalog: opts.Catalog,
		site:    opts.Site,
		loc:     opts.Location,
		metrics: opts.Metrics,
		now:     opts.Now,
		router:  mux.NewRouter(),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}

	pages, err := parsePages(embeddedAssets)
	if err != nil {
		return nil, err
	}
	s.pages = pages

	s.registerRoutes()
	return s, nil
}

// Handler returns the root handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	return withRequestID(recoverPanics(s.router))
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(s.instrument)
	r.NotFoundHandler = s.instrument(http.HandlerFunc(s.handleNotFound))
	r.MethodNotAllowedHandler = s.instrument(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/events", s.handleAPIEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/locations", s.handleAPILocations).Methods(http.MethodGet)
	r.HandleFunc("/calendar.ics", s.handleICS).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/calendar", s.handleCalendar).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/locations", s.handleLocations).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/locations/{uid}", s.handleLocation).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/about", s.handleStatic("about.html", "About")).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/contact", s.handleStatic("contact.html", "Contact")).Methods(http.MethodGet, http.MethodHead)

	r.PathPrefix("/static/").Handler(s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded files under internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedAssets, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		})
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
