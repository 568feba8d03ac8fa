package viewstate

import (
	"time"

	"whatsnext/internal/agenda"
	"whatsnext/internal/model"
)

// MaxLocationEvents caps the "Upcoming events" list of a location.
const MaxLocationEvents = 30

// EventSelection is everything a split view needs to render.
type EventSelection struct {
	Filtered   []model.EventView
	Days       []agenda.Day
	Desktop    *model.EventView
	Mobile     *model.EventView
	MobileOpen bool
}

// ResolveEvents filters events by the active types, groups them by day and
// picks the selected event. The desktop pane falls back to the first listed
// event when the key is absent or unknown. The mobile overlay is open only
// when the event parameter is present, and then shows the same pick.
func ResolveEvents(q Query, events []model.EventView, loc *time.Location) EventSelection {
	filtered := FilterByTypes(events, q.Types)
	days := agenda.Group(filtered, loc)

	sel := EventSelection{
		Filtered:   filtered,
		Days:       days,
		Desktop:    pickEvent(agenda.Flatten(days), q.Event),
		MobileOpen: q.HasEvent,
	}
	if sel.MobileOpen {
		sel.Mobile = sel.Desktop
	}
	return sel
}

// Active reports whether ev is the highlighted row.
func (s EventSelection) Active(ev model.EventView) bool {
	return s.Desktop != nil && s.Desktop.Key == ev.Key
}

// FilterByTypes keeps events whose type is one of types. An empty filter
// keeps everything; events without a type never match a non-empty filter.
func FilterByTypes(events []model.EventView, types []string) []model.EventView {
	if len(types) == 0 {
		return events
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	out := make([]model.EventView, 0, len(events))
	for _, ev := range events {
		if ev.EventType != "" && set[ev.EventType] {
			out = append(out, ev)
		}
	}
	return out
}

func pickEvent(list []model.EventView, key string) *model.EventView {
	if len(list) == 0 {
		return nil
	}
	if key != "" {
		for i := range list {
			if list[i].Key == key {
				ev := list[i]
				return &ev
			}
		}
	}
	ev := list[0]
	return &ev
}

// ResolveLocation picks the location whose uid matches q.Loc, else the
// first one, else nil.
func ResolveLocation(q Query, locations []model.LocationView) *model.LocationView {
	if len(locations) == 0 {
		return nil
	}
	if q.Loc != "" {
		for i := range locations {
			if locations[i].UID == q.Loc {
				l := locations[i]
				return &l
			}
		}
	}
	l := locations[0]
	return &l
}

// EventsAt returns, in input order, the events held at the location with the
// given id, at most limit of them.
func EventsAt(events []model.EventView, locationID string, limit int) []model.EventView {
	if locationID == "" {
		return nil
	}
	var out []model.EventView
	for _, ev := range events {
		if ev.Location == nil || ev.Location.ID != locationID {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
