package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseQuantity splits a text-encoded measurement like "36°C", "25 %" or
// "3.4" into a numeric value and a unit string. The unit may be empty.
func ParseQuantity(s string) (float64, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", fmt.Errorf("empty quantity")
	}

	end := 0
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' || c == '.' ||
			(end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	if end == 0 || (end == 1 && (s[0] == '-' || s[0] == '+')) {
		return 0, "", fmt.Errorf("no numeric prefix in %q", s)
	}

	value, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse %q: %w", s, err)
	}
	return value, strings.TrimSpace(s[end:]), nil
}

// taipeiZone covers CWA timestamps without an explicit offset. A fixed zone
// avoids depending on the host tzdata; Taiwan has no DST.
var taipeiZone = time.FixedZone("Asia/Taipei", 8*60*60)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime normalizes an upstream timestamp to UTC. Layouts without an
// offset are read as Taiwan local time, which is what CWA emits.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range timeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, taipeiZone); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
