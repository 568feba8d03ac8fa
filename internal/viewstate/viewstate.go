// Package viewstate derives the selected event, selected location and active
// type filters from the query string, and computes the query string of every
// transition. Nothing is stored server-side; a URL fully describes a view.
package viewstate

import (
	"net/url"
	"sort"
	"strings"
)

const (
	ParamEvent = "event"
	ParamLoc   = "loc"
	ParamTypes = "types"
)

// Query is the decoded view state. HasEvent/HasLoc record whether the
// parameter was literally present, even when its value is empty.
type Query struct {
	Event    string
	HasEvent bool
	Loc      string
	HasLoc   bool
	Types    []string
}

func Parse(values url.Values) Query {
	q := Query{}
	if vs, ok := values[ParamEvent]; ok {
		q.HasEvent = true
		if len(vs) > 0 {
			q.Event = vs[0]
		}
	}
	if vs, ok := values[ParamLoc]; ok {
		q.HasLoc = true
		if len(vs) > 0 {
			q.Loc = vs[0]
		}
	}
	q.Types = DecodeTypes(values.Get(ParamTypes))
	return q
}

// TypeSet returns the active filters as a set.
func (q Query) TypeSet() map[string]bool {
	set := make(map[string]bool, len(q.Types))
	for _, t := range q.Types {
		set[t] = true
	}
	return set
}

// DecodeTypes splits a comma-separated list, trimming entries and dropping
// empties and duplicates. Order of first appearance is kept.
func DecodeTypes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(part)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func EncodeTypes(types []string) string {
	return strings.Join(types, ",")
}

// ActionKind enumerates the state transitions a page can link to.
type ActionKind int

const (
	SelectEvent ActionKind = iota
	ClearEvent
	ToggleType
	ClearTypes
	SelectLocation
	ClearLocation
)

type Action struct {
	Kind  ActionKind
	Value string
}

// Apply returns the query produced by applying a to values. values is not
// modified.
func Apply(values url.Values, a Action) url.Values {
	next := clone(values)

	switch a.Kind {
	case SelectEvent:
		next.Set(ParamEvent, a.Value)
	case ClearEvent:
		next.Del(ParamEvent)
	case SelectLocation:
		next.Set(ParamLoc, a.Value)
	case ClearLocation:
		next.Del(ParamLoc)
	case ClearTypes:
		next.Del(ParamTypes)
	case ToggleType:
		value := strings.TrimSpace(a.Value)
		types := DecodeTypes(next.Get(ParamTypes))
		found := false
		kept := types[:0]
		for _, t := range types {
			if t == value {
				found = true
				continue
			}
			kept = append(kept, t)
		}
		if !found && value != "" {
			kept = append(kept, value)
		}
		if len(kept) == 0 {
			next.Del(ParamTypes)
		} else {
			next.Set(ParamTypes, EncodeTypes(kept))
		}
	}
	return next
}

func clone(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, vs := range values {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Href renders path with the encoded query, or the bare path when the query
// is empty. Keys are sorted; commas in values stay readable.
func Href(path string, values url.Values) string {
	qs := Encode(values)
	if qs == "" {
		return path
	}
	return path + "?" + qs
}

func Encode(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(strings.ReplaceAll(url.QueryEscape(v), "%2C", ","))
		}
	}
	return b.String()
}
