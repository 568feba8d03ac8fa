package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"whatsnext/internal/agenda"
	"whatsnext/internal/catalog"
	appLog "whatsnext/internal/log"
	"whatsnext/internal/model"
	"whatsnext/internal/viewstate"
)

const (
	msgLoadFailed     = "We couldn't load events right now."
	msgNoEvents       = "No upcoming events yet."
	msgNoFiltered     = "No events found for the selected filters."
	msgNoLocations    = "No locations yet."
	msgLocationGone   = "We couldn't find that location."
	msgPageNotFound   = "We couldn't find that page."
	defaultEventTitle = "Untitled event"
)

type eventRow struct {
	Event    model.EventView
	Title    string
	Time     string
	Location string
	Href     string
	Active   bool
}

type dayGroup struct {
	Key   string
	Label string
	Count string
	Rows  []eventRow
}

type eventDetail struct {
	Event     model.EventView
	Title     string
	Day       string
	Time      string
	Stamp     string
	Venue     string
	WhereHref string
	Status    string
	Tags      []string
}

type typeChip struct {
	Label string
	On    bool
	Href  string
}

type splitPage struct {
	Tagline    string
	Filters    bool
	Chips      []typeChip
	ClearHref  string
	Count      string
	Days       []dayGroup
	Empty      string
	Detail     *eventDetail
	Mobile     *eventDetail
	MobileOpen bool
	BackHref   string
}

type upcomingRow struct {
	Title string
	Type  string
	Stamp string
	Href  string
}

type locationRow struct {
	Location model.LocationView
	Href     string
	Active   bool
}

type locationDetail struct {
	Location model.LocationView
	Upcoming []upcomingRow
	PageHref string
}

type locationsPage struct {
	Total  string
	Rows   []locationRow
	Empty  string
	Detail *locationDetail
}

type locationPage struct {
	Location  model.LocationView
	Upcoming  []upcomingRow
	SplitHref string
}

type errorPage struct {
	Status  int
	Message string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderSplit(w, r, "/", false)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	s.renderSplit(w, r, "/calendar", true)
}

// renderSplit renders the list/detail view shared by the home and calendar
// pages. Only the calendar honours type filters.
func (s *Server) renderSplit(w http.ResponseWriter, r *http.Request, path string, filters bool) {
	events, err := s.catalog.Events(r.Context())
	if err != nil {
		s.renderFetchError(w, r, err)
		return
	}

	values := r.URL.Query()
	if !filters {
		values.Del(viewstate.ParamTypes)
	}
	q := viewstate.Parse(values)
	sel := viewstate.ResolveEvents(q, events, s.loc)

	body := splitPage{
		Filters:    filters,
		Days:       s.dayGroups(path, values, sel),
		MobileOpen: sel.MobileOpen,
		BackHref:   viewstate.Href(path, viewstate.Apply(values, viewstate.Action{Kind: viewstate.ClearEvent})),
		Detail:     s.eventDetail(sel.Desktop),
		Mobile:     s.eventDetail(sel.Mobile),
	}

	if filters {
		active := q.TypeSet()
		for _, t := range agenda.EventTypes(events) {
			body.Chips = append(body.Chips, typeChip{
				Label: t,
				On:    active[t],
				Href:  viewstate.Href(path, viewstate.Apply(values, viewstate.Action{Kind: viewstate.ToggleType, Value: t})),
			})
		}
		body.ClearHref = viewstate.Href(path, viewstate.Apply(values, viewstate.Action{Kind: viewstate.ClearTypes}))
		body.Count = agenda.Plural(len(sel.Filtered), "event")
	} else {
		body.Tagline = s.site.Tagline
	}

	if len(body.Days) == 0 {
		body.Empty = msgNoEvents
		if len(q.Types) > 0 {
			body.Empty = msgNoFiltered
		}
	}

	name, title, nav := "home.html", "", "home"
	if filters {
		name, title, nav = "calendar.html", "Calendar", "calendar"
	}
	s.render(w, r, http.StatusOK, name, title, nav, body)
}

func (s *Server) dayGroups(path string, values url.Values, sel viewstate.EventSelection) []dayGroup {
	now := s.now().In(s.loc)
	groups := make([]dayGroup, 0, len(sel.Days))
	for _, d := range sel.Days {
		g := dayGroup{
			Key:   d.Key,
			Label: agenda.DayLabel(d.Key, now),
			Count: agenda.Plural(len(d.Events), "item"),
		}
		for _, ev := range d.Events {
			venue := ev.LocationName()
			if venue == "" {
				venue = "Unknown location"
			}
			g.Rows = append(g.Rows, eventRow{
				Event:    ev,
				Title:    titleOr(ev.Title, defaultEventTitle),
				Time:     agenda.TimeLabel(ev, s.loc),
				Location: venue,
				Href:     viewstate.Href(path, viewstate.Apply(values, viewstate.Action{Kind: viewstate.SelectEvent, Value: ev.Key})),
				Active:   sel.Active(ev),
			})
		}
		groups = append(groups, g)
	}
	return groups
}

func (s *Server) eventDetail(ev *model.EventView) *eventDetail {
	if ev == nil {
		return nil
	}
	d := &eventDetail{
		Event:     *ev,
		Title:     titleOr(ev.Title, "Event"),
		Day:       agenda.DetailDate(*ev, s.loc),
		Time:      agenda.TimeLabel(*ev, s.loc),
		Stamp:     agenda.ShortStamp(*ev, s.loc),
		Venue:     ev.LocationName(),
		WhereHref: "/locations",
		Status:    ev.DisplayStatus(),
		Tags:      ev.DisplayTags(),
	}
	if d.Venue == "" {
		d.Venue = "Unknown location"
	}
	if ev.Location != nil && ev.Location.UID != "" {
		d.WhereHref = viewstate.Href("/locations", url.Values{viewstate.ParamLoc: {ev.Location.UID}})
	}
	return d
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locations, events, err := s.catalog.Locations(r.Context())
	if err != nil {
		s.renderFetchError(w, r, err)
		return
	}

	values := r.URL.Query()
	q := viewstate.Parse(values)
	selected := viewstate.ResolveLocation(q, locations)

	body := locationsPage{Total: pluralTotal(len(locations))}
	for _, loc := range locations {
		body.Rows = append(body.Rows, locationRow{
			Location: loc,
			Href:     viewstate.Href("/locations", viewstate.Apply(values, viewstate.Action{Kind: viewstate.SelectLocation, Value: loc.UID})),
			Active:   selected != nil && selected.ID == loc.ID,
		})
	}
	if len(locations) == 0 {
		body.Empty = msgNoLocations
	}
	if selected != nil {
		body.Detail = &locationDetail{
			Location: *selected,
			Upcoming: s.upcomingRows(viewstate.EventsAt(events, selected.ID, viewstate.MaxLocationEvents)),
		}
		if selected.UID != "" {
			body.Detail.PageHref = "/locations/" + url.PathEscape(selected.UID)
		}
	}

	s.render(w, r, http.StatusOK, "locations.html", "Locations", "locations", body)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	loc, events, err := s.catalog.Location(r.Context(), uid)
	if err != nil {
		s.renderFetchError(w, r, err)
		return
	}

	body := locationPage{
		Location:  loc,
		Upcoming:  s.upcomingRows(events),
		SplitHref: viewstate.Href("/locations", url.Values{viewstate.ParamLoc: {loc.UID}}),
	}
	s.render(w, r, http.StatusOK, "location.html", titleOr(loc.Name, "Location"), "locations", body)
}

func (s *Server) upcomingRows(events []model.EventView) []upcomingRow {
	rows := make([]upcomingRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, upcomingRow{
			Title: titleOr(ev.Title, "Event"),
			Type:  ev.EventType,
			Stamp: agenda.ShortStamp(ev, s.loc),
			Href:  viewstate.Href("/calendar", url.Values{viewstate.ParamEvent: {ev.Key}}),
		})
	}
	return rows
}

func (s *Server) handleStatic(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, name, title, "", nil)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "error.html", "Not found", "", errorPage{Status: http.StatusNotFound, Message: msgPageNotFound})
}

// renderFetchError maps a catalog failure onto an error page: unknown
// documents are 404, anything else is an upstream failure (502).
func (s *Server) renderFetchError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		s.render(w, r, http.StatusNotFound, "error.html", "Not found", "", errorPage{Status: http.StatusNotFound, Message: msgLocationGone})
		return
	}
	appLog.Error("page: content fetch failed", err, "path", r.URL.Path, "request_id", RequestID(r.Context()))
	s.render(w, r, http.StatusBadGateway, "error.html", "Unavailable", "", errorPage{Status: http.StatusBadGateway, Message: msgLoadFailed})
}

func titleOr(title, fallback string) string {
	if title == "" {
		return fallback
	}
	return title
}

func pluralTotal(n int) string {
	return agenda.Plural(n, "location")
}
