package orchestrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// modifiedLayouts are tried in order for textual modified-date values. Values without a zone are read as UTC.
var modifiedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseModified converts a modified-date column value into a UTC timestamp.
// Drivers hand back time.Time for typed columns and text for everything else.
func ParseModified(v any) (time.Time, error) {
	var s string
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", utils.ErrDateParse)
		}
		return val.UTC(), nil
	case *time.Time:
		if val == nil {
			return time.Time{}, fmt.Errorf("%w: NULL", utils.ErrDateParse)
		}
		return ParseModified(*val)
	case string:
		s = val
	case []byte:
		s = string(val)
	case nil:
		return time.Time{}, fmt.Errorf("%w: NULL", utils.ErrDateParse)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported value type %T", utils.ErrDateParse, v)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", utils.ErrDateParse)
	}
	for _, layout := range modifiedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", utils.ErrDateParse, s)
}
