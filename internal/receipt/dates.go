package receipt

import (
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// fallbackLayouts are tried when dateparse gives up
var fallbackLayouts = []string{
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"January 2 2006 3:04 PM",
	"02/01/2006 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"02-Jan-2006",
}

// NormalizeDate parses a free-form purchase date into a timestamp truncated to the
// second. Unparseable input is logged and yields nil.
func NormalizeDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		var ok bool
		if t, ok = parseFallback(s); !ok {
			slog.Warn("Could not parse purchase date", "raw", s, "error", err)
			return nil
		}
	}

	t = t.Truncate(time.Second)
	return &t
}

func parseFallback(s string) (time.Time, bool) {
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
