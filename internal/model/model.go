package model

// LocationView is the flat, render-ready shape of a "location" document.
// Empty strings mean the field was absent upstream.
type LocationView struct {
	ID          string `json:"id"`
	UID         string `json:"uid,omitempty"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	Category    string `json:"category,omitempty"`
	Website     string `json:"website,omitempty"`
	Description string `json:"description,omitempty"`
}

// EventView is the flat, render-ready shape of an "event" document. It is
// rebuilt on every request and never mutated after normalization.
type EventView struct {
	ID string `json:"id"`
	// Key is the uid slug when present, else ID. It is the selection handle
	// used in the ?event= query parameter.
	Key string `json:"key"`
	UID string `json:"uid,omitempty"`

	Title       string `json:"title,omitempty"`
	// Artists is the free-text performer line, e.g. "The Trio, DJ Ana".
	Artists     string `json:"artists,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`

	// StartDatetime is either YYYY-MM-DD or a full ISO-8601 timestamp.
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime,omitempty"`
	AllDay        bool   `json:"all_day"`

	EventType string `json:"event_type,omitempty"`
	Status    string `json:"status,omitempty"`
	Featured  bool   `json:"featured,omitempty"`

	Cost           string   `json:"cost,omitempty"`
	AgeRestriction string   `json:"age_restriction,omitempty"`
	Tags           []string `json:"tags,omitempty"`

	WebsiteURL string `json:"website_url,omitempty"`
	TicketsURL string `json:"tickets_url,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`

	// Recurrence is a raw RRULE (e.g. FREQ=WEEKLY;COUNT=4), if any.
	Recurrence string `json:"recurrence,omitempty"`

	Location *LocationView `json:"location,omitempty"`
}

// DefaultStatus is the implicit status that is never displayed.
const DefaultStatus = "Scheduled"

// MaxDisplayTags is how many tags an event shows.
const MaxDisplayTags = 4

// DisplayStatus returns Status unless it is empty or the implicit default.
func (e EventView) DisplayStatus() string {
	if e.Status == DefaultStatus {
		return ""
	}
	return e.Status
}

// DisplayTags returns at most MaxDisplayTags tags.
func (e EventView) DisplayTags() []string {
	if len(e.Tags) > MaxDisplayTags {
		return e.Tags[:MaxDisplayTags]
	}
	return e.Tags
}

// LocationName returns the embedded location name or "".
func (e EventView) LocationName() string {
	if e.Location == nil {
		return ""
	}
	return e.Location.Name
}
