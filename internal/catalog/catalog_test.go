package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsnext/internal/metrics"
	"whatsnext/internal/model"
	"whatsnext/internal/prismic"
)

var est = time.FixedZone("EST", -5*3600)

type fakeSource struct {
	mu      sync.Mutex
	byType  map[string][]prismic.Document
	errType map[string]error
	queries []prismic.QueryOptions
}

func (f *fakeSource) GetAllByType(_ context.Context, docType string, opts prismic.QueryOptions) ([]prismic.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, opts)
	if err := f.errType[docType]; err != nil {
		return nil, err
	}
	return f.byType[docType], nil
}

func (f *fakeSource) GetByUID(_ context.Context, docType, uid string, _ prismic.QueryOptions) (prismic.Document, error) {
	for _, d := range f.byType[docType] {
		if d.UID == uid {
			return d, nil
		}
	}
	return prismic.Document{}, fmt.Errorf("get %s %q: %w", docType, uid, prismic.ErrNotFound)
}

func eventDoc(id, start, locID string) prismic.Document {
	data := map[string]any{"title": "Event " + id, "start_datetime": start}
	if locID != "" {
		data["location"] = map[string]any{"id": locID, "type": "location", "data": map[string]any{"name": "Venue " + locID}}
	}
	return prismic.Document{ID: id, UID: "ev-" + id, Type: TypeEvent, Data: data}
}

func newFixture() *fakeSource {
	return &fakeSource{
		byType: map[string][]prismic.Document{
			TypeEvent: {
				eventDoc("3", "2024-03-02T18:00:00+0000", "L1"),
				eventDoc("1", "2024-03-01", "L2"),
				eventDoc("2", "2024-03-01T14:00:00+0000", ""),
				{ID: "4", Type: TypeEvent, Data: map[string]any{"title": "No date"}},
			},
			TypeLocation: {
				{ID: "L1", UID: "tellus360", Data: map[string]any{"name": "Tellus360"}},
				{ID: "L2", UID: "central-market", Data: map[string]any{"name": "central Market"}},
			},
		},
	}
}

func newTestCatalog(src Source, m *metrics.Metrics) *Catalog {
	return New(Options{
		Source:      src,
		Location:    est,
		HorizonDays: 30,
		Metrics:     m,
		Now:         func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, est) },
	})
}

func keys(evs []model.EventView) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Key
	}
	return out
}

func TestEvents_NormalizesAndSorts(t *testing.T) {
	src := newFixture()
	m := metrics.New()

	events, err := newTestCatalog(src, m).Events(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ev-1", "ev-2", "ev-3"}, keys(events))
	require.NotNil(t, events[2].Location)
	assert.Equal(t, "Venue L1", events[2].Location.Name)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsDroppedCounter()))

	require.Len(t, src.queries, 1)
	q := src.queries[0]
	assert.Equal(t, []prismic.Ordering{{Field: "my.event.start_datetime"}}, q.Orderings)
	assert.Contains(t, q.FetchLinks, "location.name")
	assert.Contains(t, q.FetchLinks, "location.website")
}

func TestEvents_ExpandsRecurrenceWithinHorizon(t *testing.T) {
	src := &fakeSource{byType: map[string][]prismic.Document{
		TypeEvent: {{ID: "M", UID: "market", Data: map[string]any{
			"start_datetime": "2024-03-02",
			"recurrence":     "FREQ=WEEKLY",
		}}},
	}}

	events, err := newTestCatalog(src, nil).Events(context.Background())
	require.NoError(t, err)

	// Saturdays from Mar 2 through Mar 30 (now + 30 days = Mar 31).
	assert.Equal(t, []string{
		"market",
		"market~2024-03-09",
		"market~2024-03-16",
		"market~2024-03-23",
		"market~2024-03-30",
	}, keys(events))
}

func TestEvents_PropagatesUpstreamError(t *testing.T) {
	boom := &prismic.APIError{Status: 500, Body: "down"}
	src := newFixture()
	src.errType = map[string]error{TypeEvent: boom}

	_, err := newTestCatalog(src, nil).Events(context.Background())

	var apiErr *prismic.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.Status)
}

func TestLocations_ConcurrentFetch(t *testing.T) {
	locations, events, err := newTestCatalog(newFixture(), nil).Locations(context.Background())
	require.NoError(t, err)

	require.Len(t, locations, 2)
	assert.Equal(t, "central Market", locations[0].Name, "case-insensitive name order")
	assert.Equal(t, "Tellus360", locations[1].Name)
	assert.Len(t, events, 3)
}

func TestLocations_EitherFailureFails(t *testing.T) {
	src := newFixture()
	src.errType = map[string]error{TypeLocation: errors.New("timeout")}

	_, _, err := newTestCatalog(src, nil).Locations(context.Background())
	assert.EqualError(t, err, "timeout")
}

func TestLocation(t *testing.T) {
	src := newFixture()

	loc, _, err := newTestCatalog(src, nil).Location(context.Background(), "tellus360")
	require.NoError(t, err)
	assert.Equal(t, "L1", loc.ID)
	assert.Equal(t, "Tellus360", loc.Name)

	require.NotEmpty(t, src.queries)
	last := src.queries[len(src.queries)-1]
	assert.Equal(t, []string{`[at(my.event.location, "L1")]`}, last.Filters)
}

func TestLocation_NotFound(t *testing.T) {
	_, _, err := newTestCatalog(newFixture(), nil).Location(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSortByStart_UnparseableLast(t *testing.T) {
	events := []model.EventView{
		{Key: "bad", StartDatetime: "soon"},
		{Key: "late", StartDatetime: "2024-03-02"},
		{Key: "early", StartDatetime: "2024-03-01T08:00:00-05:00"},
	}
	sortByStart(events, est)
	assert.Equal(t, []string{"early", "late", "bad"}, keys(events))
}
