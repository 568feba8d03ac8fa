package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsnext/internal/catalog"
	"whatsnext/internal/config"
	"whatsnext/internal/metrics"
	"whatsnext/internal/model"
)

var est = time.FixedZone("EST", -5*3600)

// The production pipeline must satisfy the interface the handlers render from.
var _ Catalog = (*catalog.Catalog)(nil)

type fakeCatalog struct {
	events    []model.EventView
	locations []model.LocationView
	err       error
	panicMsg  string
}

func (f *fakeCatalog) Events(context.Context) ([]model.EventView, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.events, f.err
}

func (f *fakeCatalog) Locations(context.Context) ([]model.LocationView, []model.EventView, error) {
	return f.locations, f.events, f.err
}

func (f *fakeCatalog) Location(_ context.Context, uid string) (model.LocationView, []model.EventView, error) {
	if f.err != nil {
		return model.LocationView{}, nil, f.err
	}
	for _, l := range f.locations {
		if l.UID == uid {
			var at []model.EventView
			for _, ev := range f.events {
				if ev.Location != nil && ev.Location.ID == l.ID {
					at = append(at, ev)
				}
			}
			return l, at, nil
		}
	}
	return model.LocationView{}, nil, fmt.Errorf("location %q: %w", uid, catalog.ErrNotFound)
}

func fixture() *fakeCatalog {
	tellus := model.LocationView{ID: "L1", UID: "tellus360", Name: "Tellus360", Address: "24 E King St"}
	square := model.LocationView{ID: "L2", UID: "penn-square", Name: "Penn Square"}
	return &fakeCatalog{
		locations: []model.LocationView{square, tellus},
		events: []model.EventView{
			{ID: "1", Key: "jazz-night", Title: "Jazz Night", StartDatetime: "2024-03-01T23:00:00+0000", EventType: "Music", Location: &tellus, TicketsURL: "https://tickets.example.com/jazz"},
			{ID: "2", Key: "farmers-market", Title: "Farmers Market", StartDatetime: "2024-03-02", EventType: "Market", Location: &square, Status: "Cancelled"},
			{ID: "3", Key: "open-mic", Title: "Open Mic", Artists: "Lancaster Songwriters Circle", StartDatetime: "2024-03-03T01:00:00+0000", EventType: "Music", Location: &tellus},
		},
	}
}

func newTestServer(t *testing.T, cat Catalog) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	s, err := NewServer(Options{
		Catalog:  cat,
		Site:     config.DefaultConfig().Site,
		Location: est,
		Metrics:  m,
		Now:      func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, est) },
	})
	require.NoError(t, err)
	return s, m
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHomeListsEventsByDay(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "<title>What&#39;s Next Lancaster</title>")
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, `data-day="2024-03-01"`)
	assert.Contains(t, body, "Today, Mar 1")
	assert.Contains(t, body, "Tomorrow, Mar 2")
	assert.Contains(t, body, "Jazz Night")
	assert.Contains(t, body, "6:00pm")
	assert.Contains(t, body, "Farmers Market")
	assert.Contains(t, body, "All day")

	// The first event is selected for the detail pane but the mobile
	// overlay stays closed until an event is chosen.
	assert.Contains(t, body, `href="/?event=jazz-night" data-replace data-active="true"`)
	assert.Contains(t, body, `data-open="false"`)
	assert.Contains(t, body, "Friday, March 1st")
	assert.Contains(t, body, `href="/locations?loc=tellus360"`)
}

func TestHomeIgnoresTypeFilter(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	body := get(t, s, "/?types=Music").Body.String()
	assert.Contains(t, body, "Farmers Market")
	assert.NotContains(t, body, `class="chip"`)
}

func TestCalendarTypeFilter(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	rec := get(t, s, "/calendar?types=Music")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "Jazz Night")
	assert.Contains(t, body, "Open Mic")
	assert.NotContains(t, body, "Farmers Market")
	assert.Contains(t, body, "2 events")

	assert.Contains(t, body, `href="/calendar" data-replace data-on="true"`)
	assert.Contains(t, body, `href="/calendar?types=Music,Market" data-replace data-on="false"`)
	assert.Contains(t, body, `<a class="btnLink" href="/calendar" data-replace>Clear</a>`)
	assert.Contains(t, body, `aria-current="page">Calendar`)
}

func TestCalendarSelection(t *testing.T) {
	s, _ := newTestServer(t, fixture())

	body := get(t, s, "/calendar?event=open-mic").Body.String()
	assert.Contains(t, body, `href="/calendar?event=open-mic" data-replace data-active="true"`)
	assert.Contains(t, body, `data-open="true"`)
	assert.Contains(t, body, `<a class="backBtn" href="/calendar" data-replace>Back</a>`)
	assert.Contains(t, body, `<div class="artists">Lancaster Songwriters Circle</div>`)

	// An unknown key falls back to the first event and still opens the
	// overlay because a selection was requested.
	body = get(t, s, "/calendar?event=missing").Body.String()
	assert.Contains(t, body, `href="/calendar?event=jazz-night" data-replace data-active="true"`)
	assert.Contains(t, body, `data-open="true"`)
}

func TestDetailCallsToAction(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	body := get(t, s, "/calendar?event=jazz-night").Body.String()
	assert.Contains(t, body, `href="https://tickets.example.com/jazz"`)
	assert.Contains(t, body, `<a class="ctaBtn" data-disabled="true" aria-disabled="true">Website</a>`)

	body = get(t, s, "/calendar?event=farmers-market").Body.String()
	assert.Contains(t, body, `<span class="pill pillWarn">Cancelled</span>`)
}

func TestEmptyStates(t *testing.T) {
	s, _ := newTestServer(t, &fakeCatalog{})
	body := get(t, s, "/calendar").Body.String()
	assert.Contains(t, body, msgNoEvents)
	assert.Contains(t, body, "No event selected")

	s, _ = newTestServer(t, fixture())
	body = get(t, s, "/calendar?types=Theatre").Body.String()
	assert.Contains(t, body, msgNoFiltered)
	assert.Contains(t, body, "0 events")
}

func TestFetchErrorRendersBadGateway(t *testing.T) {
	s, _ := newTestServer(t, &fakeCatalog{err: errors.New("upstream down")})

	for _, path := range []string{"/", "/calendar", "/locations", "/locations/tellus360"} {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusBadGateway, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `data-status="502"`, path)
		assert.Contains(t, rec.Body.String(), "couldn&#39;t load events", path)
	}
}

func TestLocations(t *testing.T) {
	s, _ := newTestServer(t, fixture())

	body := get(t, s, "/locations").Body.String()
	assert.Contains(t, body, "2 locations")
	assert.Contains(t, body, `<a class="row rowActive" href="/locations?loc=penn-square" data-replace>`)
	assert.Contains(t, body, "Farmers Market")

	body = get(t, s, "/locations?loc=tellus360").Body.String()
	assert.Contains(t, body, `<a class="row rowActive" href="/locations?loc=tellus360" data-replace>`)
	assert.Contains(t, body, `href="/calendar?event=jazz-night"`)
	assert.Contains(t, body, `href="/locations/tellus360"`)
}

func TestLocationPage(t *testing.T) {
	s, m := newTestServer(t, fixture())

	rec := get(t, s, "/locations/tellus360")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Tellus360 · What&#39;s Next Lancaster</title>")
	assert.Contains(t, body, "Jazz Night")
	assert.Contains(t, body, "Open Mic")
	assert.Contains(t, body, `href="/locations?loc=tellus360"`)

	rec = get(t, s, "/locations/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "couldn&#39;t find that location")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests("/locations/{uid}", http.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests("/locations/{uid}", http.StatusNotFound)))
}

func TestUnknownRoute(t *testing.T) {
	s, m := newTestServer(t, fixture())
	rec := get(t, s, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-status="404"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests("unmatched", http.StatusNotFound)))
}

func TestStaticPages(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	for _, path := range []string{"/about", "/contact", "/static/app.css", "/static/app.js"} {
		assert.Equal(t, http.StatusOK, get(t, s, path).Code, path)
	}
}

func TestHeadOmitsBody(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	req := httptest.NewRequest(http.MethodHead, "/calendar", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestAPIEvents(t *testing.T) {
	s, _ := newTestServer(t, fixture())

	rec := get(t, s, "/api/events?types=Market")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "farmers-market", resp.Events[0].Key)
	assert.Equal(t, []string{"Market", "Music"}, resp.Types)

	s, _ = newTestServer(t, &fakeCatalog{})
	rec = get(t, s, "/api/events")
	assert.JSONEq(t, `{"events":[],"types":[]}`, rec.Body.String())
}

func TestAPIErrors(t *testing.T) {
	s, _ := newTestServer(t, &fakeCatalog{err: errors.New("boom")})

	rec := get(t, s, "/api/events")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"We couldn't load events right now."}`, rec.Body.String())

	rec = get(t, s, "/api/locations")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPILocations(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	rec := get(t, s, "/api/locations")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp locationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Locations, 2)
	assert.Equal(t, "penn-square", resp.Locations[0].UID)
}

func TestICSFeed(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	rec := get(t, s, "/calendar.ics?types=Music")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Contains(t, body, "UID:1@whatsnext")
	assert.Contains(t, body, "UID:3@whatsnext")
	assert.NotContains(t, body, "Farmers Market")
	assert.Contains(t, body, "http://example.com/calendar?event=jazz-night")
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, fixture())

	rec := get(t, s, "/health")
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)
}

func TestPanicRecovery(t *testing.T) {
	s, _ := newTestServer(t, &fakeCatalog{panicMsg: "template exploded"})
	rec := get(t, s, "/calendar")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, fixture())
	get(t, s, "/calendar")
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `whatsnext_http_requests_total{route="/calendar",status="200"} 1`)
}

func TestICSFeedPrefersConfiguredBaseURL(t *testing.T) {
	site := config.DefaultConfig().Site
	site.BaseURL = "https://whatsnext.example"
	s, err := NewServer(Options{Catalog: fixture(), Site: site, Location: est})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/calendar.ics", nil)
	req.Host = "attacker.test"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://whatsnext.example/calendar?event=jazz-night")
	assert.NotContains(t, rec.Body.String(), "attacker.test")
}
