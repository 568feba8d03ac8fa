// Package agenda groups events into calendar days and formats the labels
// shown next to them. Everything here is pure: the same input always yields
// the same grouping, order and text.
package agenda

import (
	"sort"
	"strings"
	"time"

	"whatsnext/internal/model"
	"whatsnext/internal/normalize"
)

// KeyLayout is the bucket key format. It is fixed-width and zero-padded, so
// lexicographic order equals chronological order.
const KeyLayout = "2006-01-02"

// zoned layouts carry an offset; the Z0700 form matches the CMS's "+0000".
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
}

// local layouts have no offset and are read in the display location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Day is one bucket of events sharing a calendar date.
type Day struct {
	Key    string
	Date   time.Time
	Events []model.EventView
}

// ParseStart parses a start/end value. A bare YYYY-MM-DD is midnight in loc;
// anything else must be an ISO-8601 timestamp. Timestamps with an offset are
// converted to loc.
func ParseStart(value string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}

	if normalize.IsDateOnly(v) {
		t, err := time.ParseInLocation(KeyLayout, v, loc)
		return t, err == nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type parsedEvent struct {
	ev    model.EventView
	start time.Time
}

// Group buckets events by the calendar date of their start in loc. Buckets
// are ascending by key; events inside a bucket are ascending by start
// instant, ties keeping input order. Events whose start cannot be parsed are
// left out.
func Group(events []model.EventView, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}

	buckets := make(map[string][]parsedEvent)
	for _, ev := range events {
		start, ok := ParseStart(ev.StartDatetime, loc)
		if !ok {
			continue
		}
		key := start.Format(KeyLayout)
		buckets[key] = append(buckets[key], parsedEvent{ev: ev, start: start})
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	days := make([]Day, 0, len(keys))
	for _, k := range keys {
		list := buckets[k]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].start.Before(list[j].start)
		})

		evs := make([]model.EventView, len(list))
		for i, p := range list {
			evs[i] = p.ev
		}
		date, _ := time.ParseInLocation(KeyLayout, k, loc)
		days = append(days, Day{Key: k, Date: date, Events: evs})
	}
	return days
}

// Flatten returns the grouped events in display order.
func Flatten(days []Day) []model.EventView {
	n := 0
	for _, d := range days {
		n += len(d.Events)
	}
	out := make([]model.EventView, 0, n)
	for _, d := range days {
		out = append(out, d.Events...)
	}
	return out
}

// EventTypes returns the distinct, non-empty event types, sorted.
func EventTypes(events []model.EventView) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, ev := range events {
		if ev.EventType == "" || seen[ev.EventType] {
			continue
		}
		seen[ev.EventType] = true
		out = append(out, ev.EventType)
	}
	sort.Strings(out)
	return out
}
