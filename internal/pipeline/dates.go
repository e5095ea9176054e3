package pipeline

import (
	"math"
	"strings"
	"time"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

// dateLayouts are the timestamp shapes seen across carrier feeds, most
// specific first. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04",
	"2006/01/02",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-Jan-2006 15:04",
	"02-Jan-2006",
	"02 Jan 2006 15:04",
	"02 Jan 2006",
	"Mon 02 Jan 2006 15:04",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDate reads a date in any supported layout. Numbers are epoch seconds,
// or epoch milliseconds when large enough.
func ParseDate(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val.UTC(), !val.IsZero()
	case *string:
		if val == nil {
			return time.Time{}, false
		}
		return ParseDate(*val)
	case float64:
		return fromEpoch(val)
	case int64:
		return fromEpoch(float64(val))
	case int:
		return fromEpoch(float64(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func fromEpoch(n float64) (time.Time, bool) {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}, false
	}
	if n > 1e11 {
		return time.UnixMilli(int64(n)).UTC(), true
	}
	return time.Unix(int64(n), 0).UTC(), true
}

// NormalizeDate renders v as an RFC 3339 UTC timestamp, or nil when it is
// missing or unparseable.
func NormalizeDate(v interface{}) *string {
	t, ok := ParseDate(v)
	if !ok {
		return nil
	}
	return models.StringPtr(t.Format(time.RFC3339))
}
