package spclient

import (
	"strconv"
	"strings"
	"time"
)

// Row is one item row from a RenderListDataAsStream page. The endpoint
// returns loosely typed values (numbers as strings, locale-formatted dates),
// so accessors are defensive: a missing or malformed value yields the zero
// value rather than failing the page.
type Row map[string]any

// String returns the field as a string, or "" when absent.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int returns the field as an int. The second return reports whether a
// usable value was present.
func (r Row) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case float64:
		return int(v), true
	case string:
		// SharePoint renders numeric fields with thousands separators.
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if cleaned == "" {
			return 0, false
		}
		n, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Int64 returns the field as an int64, defaulting to 0.
func (r Row) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		n, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

var rowTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
}

// Time parses the field with the formats the listing endpoint is known to
// emit. Unparseable values yield the zero time.
func (r Row) Time(key string) time.Time {
	raw := r.String(key)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range rowTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
