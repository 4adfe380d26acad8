package assetd

import (
	"strings"
	"time"
)

// MimeEntry describes how one file extension is served. MaxAge, when set,
// overrides the site-wide Cache-Control max-age.
type MimeEntry struct {
	Extension   string
	ContentType string
	MaxAge      time.Duration
}

type MimeTable struct {
	entries map[string]MimeEntry
}

var defaultMimeEntries = []MimeEntry{
	{Extension: ".css", ContentType: "text/css"},
	{Extension: ".less", ContentType: "text/css"},
	{Extension: ".scss", ContentType: "text/css"},
	{Extension: ".png", ContentType: "image/png"},
	{Extension: ".jpg", ContentType: "image/jpeg"},
	{Extension: ".jpeg", ContentType: "image/jpeg"},
	{Extension: ".webp", ContentType: "image/webp"},
	{Extension: webpVariantExt, ContentType: "image/webp"},
}

// NewMimeTable returns the built-in table with extra entries layered on top.
func NewMimeTable(extra ...MimeEntry) *MimeTable {
	t := &MimeTable{entries: make(map[string]MimeEntry, len(defaultMimeEntries)+len(extra))}
	for _, e := range defaultMimeEntries {
		t.Set(e)
	}
	for _, e := range extra {
		t.Set(e)
	}
	return t
}

func (t *MimeTable) Set(e MimeEntry) {
	e.Extension = strings.ToLower(e.Extension)
	t.entries[e.Extension] = e
}

func (t *MimeTable) Lookup(ext string) (MimeEntry, bool) {
	e, ok := t.entries[strings.ToLower(ext)]
	return e, ok
}

func mimeEntriesFromConfig(rules []MimeRule) []MimeEntry {
	out := make([]MimeEntry, 0, len(rules))
	for _, r := range rules {
		out = append(out, MimeEntry{
			Extension:   r.Extension,
			ContentType: r.ContentType,
			MaxAge:      r.maxAgeDur,
		})
	}
	return out
}
