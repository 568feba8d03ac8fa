// Package normalize maps raw CMS documents onto the flat view models.
//
// Every function here is total: absent or wrong-typed fields degrade to the
// zero value and never panic. The only reason an event is dropped is a start
// value that cannot be found under any candidate field name.
package normalize

import (
	"regexp"
	"strings"

	appLog "whatsnext/internal/log"
	"whatsnext/internal/model"
	"whatsnext/internal/prismic"
)

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Candidate field names for values whose API id has changed over time.
var (
	websiteFields    = []string{"website_url", "website", "url"}
	ticketsFields    = []string{"tickets_url", "tickets", "ticket_url", "tickets_link"}
	imageFields      = []string{"image", "hero_image", "photo"}
	recurrenceFields = []string{"recurrence", "rrule"}
	tagLabelKeys     = []string{"tag", "label", "name", "text", "value"}
)

// textSeparator joins rich text blocks, matching the SDK's asText default.
const textSeparator = " "

// Fields holds the ordered candidate names for the event start and end.
type Fields struct {
	Start []string
	End   []string
}

type Normalizer struct {
	fields Fields
}

// New returns a Normalizer probing the given candidate lists. Empty lists are
// replaced with start_datetime / end_datetime.
func New(fields Fields) *Normalizer {
	if len(fields.Start) == 0 {
		fields.Start = []string{"start_datetime"}
	}
	if len(fields.End) == 0 {
		fields.End = []string{"end_datetime"}
	}
	return &Normalizer{fields: fields}
}

// IsDateOnly reports whether v is a bare YYYY-MM-DD date.
func IsDateOnly(v string) bool {
	return dateOnlyRe.MatchString(strings.TrimSpace(v))
}

// Events normalizes docs in order and returns the admitted events together
// with the number of documents dropped for lacking a start value.
func (n *Normalizer) Events(docs []prismic.Document) ([]model.EventView, int) {
	out := make([]model.EventView, 0, len(docs))
	dropped := 0
	for _, doc := range docs {
		ev, ok := n.Event(doc)
		if !ok {
			dropped++
			appLog.Debug("event dropped: no start value", "id", doc.ID, "uid", doc.UID, "candidates", strings.Join(n.fields.Start, ","))
			continue
		}
		out = append(out, ev)
	}
	return out, dropped
}

// Event builds an EventView. It reports false when no start value resolves.
func (n *Normalizer) Event(doc prismic.Document) (model.EventView, bool) {
	data := doc.Data

	start := firstString(data, n.fields.Start)
	if start == "" {
		return model.EventView{}, false
	}

	key := doc.UID
	if key == "" {
		key = doc.ID
	}

	ev := model.EventView{
		ID:  doc.ID,
		Key: key,
		UID: doc.UID,

		Title:       textField(data["title"]),
		Artists:     textField(data["artists"]),
		Summary:     textField(data["summary"]),
		Description: textField(data["description"]),

		StartDatetime: start,
		EndDatetime:   firstString(data, n.fields.End),
		AllDay:        boolField(data["all_day"]) || IsDateOnly(start),

		EventType: textField(data["event_type"]),
		Status:    textField(data["status"]),
		Featured:  boolField(data["featured"]),

		Cost:           textField(data["cost"]),
		AgeRestriction: textField(data["age_restriction"]),
		Tags:           tagsField(data["tags"]),

		WebsiteURL: firstLink(data, websiteFields),
		TicketsURL: firstLink(data, ticketsFields),
		ImageURL:   imageField(data),

		Recurrence: firstString(data, recurrenceFields),

		Location: LocationFromLink(data["location"]),
	}
	return ev, true
}

// Locations normalizes every document; locations are never dropped.
func (n *Normalizer) Locations(docs []prismic.Document) []model.LocationView {
	out := make([]model.LocationView, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Location(doc))
	}
	return out
}

// Location builds a LocationView from a location document.
func Location(doc prismic.Document) model.LocationView {
	data := doc.Data
	return model.LocationView{
		ID:          doc.ID,
		UID:         doc.UID,
		Name:        textField(data["name"]),
		Address:     textField(data["address"]),
		Category:    textField(data["category"]),
		Website:     prismic.AsLink(data["website"]),
		Description: textField(data["description"]),
	}
}

// LocationFromLink resolves an expanded document link to a location snapshot,
// or nil when the field is empty, broken, or not a link.
func LocationFromLink(field any) *model.LocationView {
	doc, ok := prismic.DocumentFromLink(field)
	if !ok {
		return nil
	}
	loc := Location(doc)
	return &loc
}

// firstString returns the first candidate holding a non-empty string.
func firstString(data map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstLink(data map[string]any, keys []string) string {
	for _, k := range keys {
		if u := prismic.AsLink(data[k]); u != "" {
			return u
		}
	}
	return ""
}

func imageField(data map[string]any) string {
	for _, k := range imageFields {
		if u := prismic.AsImageURL(data[k]); u != "" {
			return u
		}
	}
	if s, ok := data["image_url"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// textField accepts a plain string or rich text. Blank results, including an
// empty rich text list, are treated as absent.
func textField(v any) string {
	return strings.TrimSpace(prismic.AsText(v, textSeparator))
}

func boolField(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true") || strings.EqualFold(strings.TrimSpace(b), "yes")
	default:
		return false
	}
}

// tagsField maps a group of tag wrappers ({"tag": "Jazz"}) or plain strings to
// their labels, keeping order and skipping empty entries.
func tagsField(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var label string
		switch t := item.(type) {
		case string:
			label = strings.TrimSpace(t)
		case map[string]any:
			for _, k := range tagLabelKeys {
				if label = textField(t[k]); label != "" {
					break
				}
			}
		}
		if label != "" {
			out = append(out, label)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
