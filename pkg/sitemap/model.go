package sitemap

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Namespace is the sitemap protocol namespace written on every root element.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// ChangeFrequency is the <changefreq> hint. The zero value means "not set".
type ChangeFrequency string

const (
	ChangeAlways  ChangeFrequency = "always"
	ChangeHourly  ChangeFrequency = "hourly"
	ChangeDaily   ChangeFrequency = "daily"
	ChangeWeekly  ChangeFrequency = "weekly"
	ChangeMonthly ChangeFrequency = "monthly"
	ChangeYearly  ChangeFrequency = "yearly"
	ChangeNever   ChangeFrequency = "never"
)

var changeFrequencies = []ChangeFrequency{
	ChangeAlways, ChangeHourly, ChangeDaily, ChangeWeekly, ChangeMonthly, ChangeYearly, ChangeNever,
}

// ParseChangeFrequency accepts any casing of the enum names ("Weekly", "WEEKLY", "weekly").
func ParseChangeFrequency(s string) (ChangeFrequency, error) {
	candidate := ChangeFrequency(strings.ToLower(strings.TrimSpace(s)))
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("unknown change frequency %q", s)
}

// String returns the lower-case wire name
func (c ChangeFrequency) String() string {
	return string(c)
}

// IsValid reports whether c is one of the seven protocol values
func (c ChangeFrequency) IsValid() bool {
	for _, known := range changeFrequencies {
		if c == known {
			return true
		}
	}
	return false
}

// UnmarshalYAML decodes a scalar case-insensitively
func (c *ChangeFrequency) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*c = ""
		return nil
	}
	parsed, err := ParseChangeFrequency(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*c = parsed
	return nil
}

// UnmarshalText decodes JSON strings and flag values the same way as YAML
func (c *ChangeFrequency) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = ""
		return nil
	}
	parsed, err := ParseChangeFrequency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Entry is one <url> element. Nil LastMod, empty ChangeFreq and nil Priority are omitted.
type Entry struct {
	URL        string
	LastMod    *time.Time
	ChangeFreq ChangeFrequency
	Priority   *float64
}

// IndexEntry is one <sitemap> element of an index document.
type IndexEntry struct {
	URL     string
	LastMod *time.Time
}

// URLSet is an entity sitemap. Entries keep insertion order.
type URLSet struct {
	entries []Entry
}

// NewURLSet creates an empty document with room for capacity entries
func NewURLSet(capacity int) *URLSet {
	return &URLSet{entries: make([]Entry, 0, max(capacity, 0))}
}

// Add appends an entry
func (s *URLSet) Add(e Entry) {
	s.entries = append(s.entries, e)
}

// Len returns the number of entries
func (s *URLSet) Len() int {
	return len(s.entries)
}

// Entries returns the entries in insertion order. The slice must not be modified.
func (s *URLSet) Entries() []Entry {
	return s.entries
}

// Index is a sitemap index document. Entries keep insertion order.
type Index struct {
	entries []IndexEntry
}

// NewIndex creates an empty index document
func NewIndex() *Index {
	return &Index{}
}

// Add appends an entry
func (x *Index) Add(e IndexEntry) {
	x.entries = append(x.entries, e)
}

// Len returns the number of entries
func (x *Index) Len() int {
	return len(x.entries)
}

// Entries returns the entries in insertion order. The slice must not be modified.
func (x *Index) Entries() []IndexEntry {
	return x.entries
}

// TimePtr is a helper for optional timestamps
func TimePtr(t time.Time) *time.Time {
	return &t
}

// PriorityPtr is a helper for optional priorities
func PriorityPtr(p float64) *float64 {
	return &p
}
