package prismic

import (
	"strings"
)

// Document is a raw content record. Data is kept as a generic map because the
// upstream content model can be edited independently of this application;
// callers probe it field by field with fallbacks.
type Document struct {
	ID   string         `json:"id"`
	UID  string         `json:"uid"`
	Type string         `json:"type"`
	Tags []string       `json:"tags"`
	Lang string         `json:"lang"`
	Data map[string]any `json:"data"`
}

// Field returns Data[name] or nil.
func (d Document) Field(name string) any {
	if d.Data == nil {
		return nil
	}
	return d.Data[name]
}

// DocumentFromLink converts an expanded document link (as returned for
// fetchLinks) into a Document. It reports false for anything that is not a
// non-broken document link.
func DocumentFromLink(field any) (Document, bool) {
	m, ok := field.(map[string]any)
	if !ok {
		return Document{}, false
	}
	id, _ := m["id"].(string)
	if id == "" {
		return Document{}, false
	}
	if broken, _ := m["isBroken"].(bool); broken {
		return Document{}, false
	}

	doc := Document{ID: id}
	doc.UID, _ = m["uid"].(string)
	doc.Type, _ = m["type"].(string)
	doc.Lang, _ = m["lang"].(string)
	doc.Data, _ = m["data"].(map[string]any)
	return doc, true
}

// AsText flattens a rich text field (an ordered list of block nodes) into
// plain text, joining blocks with sep. A plain string is returned as is.
// Anything else yields "".
func AsText(field any, sep string) string {
	switch v := field.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, node := range v {
			block, ok := node.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := block["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, sep)
	default:
		return ""
	}
}

// AsLink resolves a link field to its URL. Web and media links carry a url;
// document links only carry one when the repository has a route resolver.
// Empty ("Any") links, broken links and wrong-typed values yield "".
func AsLink(field any) string {
	switch v := field.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if broken, _ := v["isBroken"].(bool); broken {
			return ""
		}
		u, _ := v["url"].(string)
		return strings.TrimSpace(u)
	default:
		return ""
	}
}

// AsImageURL returns the url of an image field.
func AsImageURL(field any) string {
	m, ok := field.(map[string]any)
	if !ok {
		return ""
	}
	u, _ := m["url"].(string)
	return strings.TrimSpace(u)
}
