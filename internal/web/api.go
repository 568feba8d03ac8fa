package web

import (
	"net/http"

	"whatsnext/internal/agenda"
	"whatsnext/internal/ics"
	appLog "whatsnext/internal/log"
	"whatsnext/internal/model"
	"whatsnext/internal/viewstate"
)

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events []model.EventView `json:"events"`
	// Types lists every event type present before filtering.
	Types []string `json:"types"`
}

// locationsResponse is the JSON response shape for /api/locations.
type locationsResponse struct {
	Locations []model.LocationView `json:"locations"`
}

// handleAPIEvents returns the events in display order.
//
// GET /api/events?types=Music,Market
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.catalog.Events(r.Context())
	if err != nil {
		appLog.Error("api events: content fetch failed", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusBadGateway, msgLoadFailed)
		return
	}

	q := viewstate.Parse(r.URL.Query())
	sel := viewstate.ResolveEvents(q, events, s.loc)

	out := agenda.Flatten(sel.Days)
	if out == nil {
		out = []model.EventView{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: out, Types: agenda.EventTypes(events)})
}

func (s *Server) handleAPILocations(w http.ResponseWriter, r *http.Request) {
	locations, _, err := s.catalog.Locations(r.Context())
	if err != nil {
		appLog.Error("api locations: content fetch failed", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusBadGateway, "We couldn't load locations right now.")
		return
	}
	if locations == nil {
		locations = []model.LocationView{}
	}
	writeJSON(w, http.StatusOK, locationsResponse{Locations: locations})
}

// handleICS exports the (optionally type-filtered) events as iCalendar.
//
// GET /calendar.ics?types=Music
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	events, err := s.catalog.Events(r.Context())
	if err != nil {
		appLog.Error("ics feed: content fetch failed", err, "request_id", RequestID(r.Context()))
		http.Error(w, msgLoadFailed, http.StatusBadGateway)
		return
	}

	q := viewstate.Parse(r.URL.Query())
	cal := ics.BuildFeed(viewstate.FilterByTypes(events, q.Types), ics.FeedOptions{
		Name:     s.site.Title,
		BaseURL:  s.baseURL(r),
		Location: s.loc,
		Now:      s.now(),
	})

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	if err := cal.SerializeTo(w); err != nil {
		appLog.Error("ics feed: write failed", err, "request_id", RequestID(r.Context()))
	}
}

// baseURL is the configured public origin, or else the origin the request
// was addressed to, honouring a reverse proxy's X-Forwarded-Proto.
func (s *Server) baseURL(r *http.Request) string {
	if s.site.BaseURL != "" {
		return s.site.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
