package agenda

import (
	"strconv"
	"time"

	"whatsnext/internal/model"
	"whatsnext/internal/normalize"
)

const clockLayout = "3:04pm"

// DayLabel renders a bucket heading relative to now: "Today, Mar 1",
// "Tomorrow, Mar 2" or "Sunday, Mar 3". Keys that do not parse are returned
// unchanged.
func DayLabel(key string, now time.Time) string {
	day, err := time.ParseInLocation(KeyLayout, key, now.Location())
	if err != nil {
		return key
	}

	var label string
	switch {
	case sameDate(day, now):
		label = "Today"
	case sameDate(day, now.AddDate(0, 0, 1)):
		label = "Tomorrow"
	default:
		label = day.Weekday().String()
	}
	return label + ", " + day.Format("Jan 2")
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsAllDay reports whether ev is shown without a time: either flagged, or the
// start carries no time component.
func IsAllDay(ev model.EventView) bool {
	return ev.AllDay || normalize.IsDateOnly(ev.StartDatetime)
}

// TimeLabel renders "All day", "6:00pm – 9:00pm" or "6:00pm".
func TimeLabel(ev model.EventView, loc *time.Location) string {
	if IsAllDay(ev) {
		return "All day"
	}
	start, ok := ParseStart(ev.StartDatetime, loc)
	if !ok {
		return ""
	}
	if end, ok := ParseStart(ev.EndDatetime, loc); ok {
		return start.Format(clockLayout) + " – " + end.Format(clockLayout)
	}
	return start.Format(clockLayout)
}

// DetailDate renders the detail pane heading, e.g. "Friday, March 1st".
func DetailDate(ev model.EventView, loc *time.Location) string {
	start, ok := ParseStart(ev.StartDatetime, loc)
	if !ok {
		return ""
	}
	return start.Format("Monday, January ") + ordinal(start.Day())
}

// ShortStamp renders "Mar 1, 6:00 PM", or "Mar 1" for all-day events.
func ShortStamp(ev model.EventView, loc *time.Location) string {
	start, ok := ParseStart(ev.StartDatetime, loc)
	if !ok {
		return ""
	}
	if IsAllDay(ev) {
		return start.Format("Jan 2")
	}
	return start.Format("Jan 2, 3:04 PM")
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// Plural renders "1 event" / "3 events".
func Plural(n int, noun string) string {
	s := strconv.Itoa(n) + " " + noun
	if n != 1 {
		s += "s"
	}
	return s
}
