package ics

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"whatsnext/internal/agenda"
	appLog "whatsnext/internal/log"
	"whatsnext/internal/model"
	"whatsnext/internal/normalize"
)

const (
	defaultMaxOccurrencesPerEvent = 200

	// OccurrenceSep joins a recurring event's key with the start of a later
	// occurrence: "farmers-market~2024-03-09" for all-day rules,
	// "walking-tour~2024-03-01T1000" for timed ones.
	OccurrenceSep = "~"

	occurrenceTimeLayout = "2006-01-02T1504"
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone occurrences are computed and written in.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeEnd is the inclusive upper bound for occurrence starts.
	RangeEnd time.Time

	// MaxOccurrencesPerEvent caps the expansion of a single rule. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded events and the keys of events whose rule
// hit the cap.
type ExpandResult struct {
	Events          []model.EventView
	TruncatedEvents []string
}

// ExpandRecurring replaces every event that carries an RRULE in its
// Recurrence field with one event per occurrence, from its own start up to
// cfg.RangeEnd. Events without a rule, with a start that does not parse or
// with a rule that does not parse are passed through unchanged. Input order
// is kept; occurrences of one event stay adjacent.
func ExpandRecurring(events []model.EventView, cfg ExpandConfig) ExpandResult {
	var result ExpandResult

	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	out := make([]model.EventView, 0, len(events))
	for _, ev := range events {
		if strings.TrimSpace(ev.Recurrence) == "" {
			out = append(out, ev)
			continue
		}

		occ, hitCap := expandEvent(ev, cfg)
		out = append(out, occ...)

		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.Key)
			appLog.Warn("expand: truncated occurrences due to cap",
				"key", ev.Key,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = out
	return result
}

func expandEvent(ev model.EventView, cfg ExpandConfig) ([]model.EventView, bool) {
	single := []model.EventView{ev}

	start, ok := agenda.ParseStart(ev.StartDatetime, cfg.DisplayLocation)
	if !ok {
		return single, false
	}

	r, err := parseRule(ev.Recurrence)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "key", ev.Key, "rrule", ev.Recurrence)
		return single, false
	}
	r.DTStart(start)

	dateOnly := normalize.IsDateOnly(ev.StartDatetime)
	var dur time.Duration
	if end, ok := agenda.ParseStart(ev.EndDatetime, cfg.DisplayLocation); ok && end.After(start) {
		dur = end.Sub(start)
	}

	out := make([]model.EventView, 0)
	hitCap := false
	hasOriginal := false
	next := r.Iterator()
	for {
		occStart, ok := next()
		if !ok || occStart.After(cfg.RangeEnd) {
			break
		}
		if len(out) == cfg.MaxOccurrencesPerEvent {
			hitCap = true
			break
		}
		if occStart.Equal(start) {
			hasOriginal = true
			out = append(out, ev)
			continue
		}
		out = append(out, makeOccurrence(ev, occStart, dur, dateOnly))
	}

	// A rule need not match its own DTSTART; the published date still shows.
	if !hasOriginal {
		out = append(single, out...)
	}

	return out, hitCap
}

// parseRule accepts a bare rule ("FREQ=WEEKLY;COUNT=4") or one with the
// "RRULE:" prefix.
func parseRule(raw string) (*rrule.RRule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty rule")
	}
	if strings.HasPrefix(strings.ToUpper(raw), "RRULE:") {
		raw = raw[len("RRULE:"):]
	}
	return rrule.StrToRRule(strings.ToUpper(raw))
}

// makeOccurrence copies ev onto a later occurrence. Key and ID get the
// occurrence start appended (date, plus local time for timed rules, which can
// fire more than once a day) so every row stays individually selectable.
func makeOccurrence(ev model.EventView, start time.Time, dur time.Duration, dateOnly bool) model.EventView {
	occ := ev
	suffix := OccurrenceSep + start.Format(agenda.KeyLayout)
	if !dateOnly {
		suffix = OccurrenceSep + start.Format(occurrenceTimeLayout)
	}
	occ.Key = ev.Key + suffix
	occ.ID = ev.ID + suffix

	if dateOnly {
		occ.StartDatetime = start.Format(agenda.KeyLayout)
		if ev.EndDatetime != "" && dur > 0 {
			occ.EndDatetime = start.Add(dur).Format(agenda.KeyLayout)
		}
		return occ
	}

	occ.StartDatetime = start.Format(time.RFC3339)
	occ.EndDatetime = ""
	if dur > 0 {
		occ.EndDatetime = start.Add(dur).Format(time.RFC3339)
	}
	return occ
}
