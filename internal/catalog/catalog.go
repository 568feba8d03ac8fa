// Package catalog runs the per-request read pipeline: query the content
// repository, normalize documents into view models, expand recurring events
// and put everything in display order. Nothing is cached; every call hits
// the upstream API.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"whatsnext/internal/agenda"
	"whatsnext/internal/ics"
	appLog "whatsnext/internal/log"
	"whatsnext/internal/metrics"
	"whatsnext/internal/model"
	"whatsnext/internal/normalize"
	"whatsnext/internal/prismic"
)

// Document types in the content repository.
const (
	TypeEvent    = "event"
	TypeLocation = "location"
)

// ErrNotFound is returned by Location for an unknown uid.
var ErrNotFound = errors.New("catalog: not found")

// locationLinks are the location fields expanded onto each event.
var locationLinks = []string{
	"location.name",
	"location.address",
	"location.category",
	"location.website",
	"location.description",
}

// Source is the subset of *prismic.Client the pipeline needs.
type Source interface {
	GetAllByType(ctx context.Context, docType string, opts prismic.QueryOptions) ([]prismic.Document, error)
	GetByUID(ctx context.Context, docType, uid string, opts prismic.QueryOptions) (prismic.Document, error)
}

// Options configures a Catalog.
type Options struct {
	Source     Source
	Normalizer *normalize.Normalizer
	// StartField is the primary start field, used as the upstream ordering
	// hint ("my.event.{StartField}").
	StartField string
	// Location is the display timezone.
	Location *time.Location
	// HorizonDays bounds recurring expansion to now + HorizonDays.
	HorizonDays    int
	MaxOccurrences int
	Metrics        *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Catalog is safe for concurrent use; it holds no mutable state.
type Catalog struct {
	src        Source
	norm       *normalize.Normalizer
	startField string
	loc        *time.Location
	horizon    int
	maxOcc     int
	metrics    *metrics.Metrics
	now        func() time.Time
}

func New(opts Options) *Catalog {
	c := &Catalog{
		src:        opts.Source,
		norm:       opts.Normalizer,
		startField: opts.StartField,
		loc:        opts.Location,
		horizon:    opts.HorizonDays,
		maxOcc:     opts.MaxOccurrences,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if c.norm == nil {
		c.norm = normalize.New(normalize.Fields{})
	}
	if c.startField == "" {
		c.startField = "start_datetime"
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Events returns every published event with its location expanded,
// recurring events unrolled, sorted by start.
func (c *Catalog) Events(ctx context.Context) ([]model.EventView, error) {
	return c.events(ctx, nil)
}

func (c *Catalog) events(ctx context.Context, filters []string) ([]model.EventView, error) {
	docs, err := c.src.GetAllByType(ctx, TypeEvent, prismic.QueryOptions{
		Orderings:  []prismic.Ordering{{Field: "my." + TypeEvent + "." + c.startField}},
		FetchLinks: locationLinks,
		Filters:    filters,
	})
	if err != nil {
		return nil, err
	}

	events, dropped := c.norm.Events(docs)
	if dropped > 0 {
		c.metrics.EventsDropped(dropped)
		appLog.Debug("catalog: dropped events without a start value", "count", dropped)
	}

	res := ics.ExpandRecurring(events, ics.ExpandConfig{
		DisplayLocation:        c.loc,
		RangeEnd:               c.now().In(c.loc).AddDate(0, 0, c.horizon),
		MaxOccurrencesPerEvent: c.maxOcc,
	})

	sortByStart(res.Events, c.loc)
	return res.Events, nil
}

// Locations returns all locations sorted by name together with all events.
// The two queries run concurrently.
func (c *Catalog) Locations(ctx context.Context) ([]model.LocationView, []model.EventView, error) {
	var (
		wg        sync.WaitGroup
		locations []model.LocationView
		events    []model.EventView
		locErr    error
		evErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		locations, locErr = c.locations(ctx)
	}()
	go func() {
		defer wg.Done()
		events, evErr = c.Events(ctx)
	}()
	wg.Wait()

	if err := errors.Join(locErr, evErr); err != nil {
		return nil, nil, err
	}
	return locations, events, nil
}

func (c *Catalog) locations(ctx context.Context) ([]model.LocationView, error) {
	docs, err := c.src.GetAllByType(ctx, TypeLocation, prismic.QueryOptions{
		Orderings: []prismic.Ordering{{Field: "my." + TypeLocation + ".name"}},
	})
	if err != nil {
		return nil, err
	}
	locations := c.norm.Locations(docs)
	sortByName(locations)
	return locations, nil
}

// Location returns the location with the given uid and the events linked
// to it. An unknown uid yields an error wrapping ErrNotFound.
func (c *Catalog) Location(ctx context.Context, uid string) (model.LocationView, []model.EventView, error) {
	doc, err := c.src.GetByUID(ctx, TypeLocation, uid, prismic.QueryOptions{})
	if err != nil {
		if errors.Is(err, prismic.ErrNotFound) {
			return model.LocationView{}, nil, fmt.Errorf("location %q: %w", uid, ErrNotFound)
		}
		return model.LocationView{}, nil, err
	}

	loc := normalize.Location(doc)
	events, err := c.events(ctx, []string{prismic.At("my."+TypeEvent+".location", doc.ID)})
	if err != nil {
		return model.LocationView{}, nil, err
	}
	return loc, events, nil
}

// sortByStart orders events by start instant. Events whose start does not
// parse go last, keeping their relative order.
func sortByStart(events []model.EventView, loc *time.Location) {
	type keyed struct {
		ev    model.EventView
		start time.Time
		ok    bool
	}
	list := make([]keyed, len(events))
	for i, ev := range events {
		start, ok := agenda.ParseStart(ev.StartDatetime, loc)
		list[i] = keyed{ev: ev, start: start, ok: ok}
	}

	sort.SliceStable(list, func(a, b int) bool {
		if list[a].ok != list[b].ok {
			return list[a].ok
		}
		return list[a].ok && list[a].start.Before(list[b].start)
	})

	for i := range list {
		events[i] = list[i].ev
	}
}

func sortByName(locations []model.LocationView) {
	sort.SliceStable(locations, func(i, j int) bool {
		return strings.ToLower(locations[i].Name) < strings.ToLower(locations[j].Name)
	})
}
