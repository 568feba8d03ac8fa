package ics

import (
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"whatsnext/internal/agenda"
	appLog "whatsnext/internal/log"
	"whatsnext/internal/model"
)

const productID = "-//whatsnext//Events Calendar//EN"

// FeedOptions describes the VCALENDAR wrapper of an exported feed.
type FeedOptions struct {
	Name string

	// BaseURL, when set, gives events without a website a link back to their
	// calendar detail page.
	BaseURL string

	// Location is used to read zone-less and date-only starts.
	Location *time.Location

	// Now stamps every VEVENT (DTSTAMP). Zero means time.Now().
	Now time.Time
}

// BuildFeed renders events as a PUBLISH calendar. All-day events (flagged or
// date-only) become DATE-valued entries with an exclusive end; events whose start
// does not parse are skipped.
func BuildFeed(events []model.EventView, opts FeedOptions) *ical.Calendar {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetName(opts.Name)
	}
	cal.SetXWRTimezone(opts.Location.String())

	skipped := 0
	for _, ev := range events {
		start, ok := agenda.ParseStart(ev.StartDatetime, opts.Location)
		if !ok {
			skipped++
			continue
		}

		ve := cal.AddEvent(eventUID(ev))
		ve.SetDtStampTime(opts.Now)
		ve.SetSummary(titleOrDefault(ev.Title))

		if agenda.IsAllDay(ev) {
			ve.SetAllDayStartAt(start)
			ve.SetAllDayEndAt(allDayEnd(ev, start, opts.Location))
		} else {
			ve.SetStartAt(start)
			if end, ok := agenda.ParseStart(ev.EndDatetime, opts.Location); ok && end.After(start) {
				ve.SetEndAt(end)
			}
		}

		if desc := description(ev); desc != "" {
			ve.SetDescription(desc)
		}
		if where := whereText(ev.Location); where != "" {
			ve.SetLocation(where)
		}
		if link := eventURL(ev, opts.BaseURL); link != "" {
			ve.SetURL(link)
		}
		if ev.EventType != "" {
			ve.AddCategory(ev.EventType)
		}
		ve.SetStatus(objectStatus(ev.DisplayStatus()))
	}

	if skipped > 0 {
		appLog.Debug("ics feed: skipped events without a usable start", "count", skipped)
	}
	return cal
}

func eventUID(ev model.EventView) string {
	id := ev.ID
	if id == "" {
		id = ev.Key
	}
	return id + "@whatsnext"
}

func titleOrDefault(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled event"
	}
	return title
}

// allDayEnd returns the exclusive DTEND for an all-day event.
func allDayEnd(ev model.EventView, start time.Time, loc *time.Location) time.Time {
	if end, ok := agenda.ParseStart(ev.EndDatetime, loc); ok && !end.Before(start) {
		y, m, d := end.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return start.AddDate(0, 0, 1)
}

func description(ev model.EventView) string {
	parts := make([]string, 0, 3)
	if ev.Artists != "" {
		parts = append(parts, ev.Artists)
	}
	if ev.Summary != "" {
		parts = append(parts, ev.Summary)
	}
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	return strings.Join(parts, "\n\n")
}

func whereText(loc *model.LocationView) string {
	if loc == nil {
		return ""
	}
	switch {
	case loc.Name != "" && loc.Address != "":
		return loc.Name + ", " + loc.Address
	case loc.Name != "":
		return loc.Name
	default:
		return loc.Address
	}
}

func eventURL(ev model.EventView, baseURL string) string {
	if ev.WebsiteURL != "" {
		return ev.WebsiteURL
	}
	if baseURL == "" || ev.Key == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/calendar?event=" + url.QueryEscape(ev.Key)
}

func objectStatus(status string) ical.ObjectStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled":
		return ical.ObjectStatusCancelled
	case "postponed", "tentative", "rescheduled":
		return ical.ObjectStatusTentative
	default:
		return ical.ObjectStatusConfirmed
	}
}
