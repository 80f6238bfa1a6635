// Package datefmt normalizes the date and time-of-day representations the
// clinic frontend sends into the canonical forms stored in the database:
// YYYY-MM-DD for dates and HH:MM:SS for times.
//
// Dates never go through local-timezone conversion. A value that already
// carries a calendar date (YYYY-MM-DD, or an ISO-8601 datetime with a T
// separator) keeps that calendar date verbatim; any other parseable form is
// read in UTC calendar fields.
package datefmt

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Layout is the canonical date layout.
const Layout = "2006-01-02"

// TimeLayout is the canonical time-of-day layout.
const TimeLayout = "15:04:05"

var canonicalDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// fallbackLayouts are tried in order for inputs that are neither canonical
// nor ISO datetimes with a T separator.
var fallbackLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.RFC3339,
	time.RFC3339Nano,
	// JavaScript Date.prototype.toString without the zone name suffix.
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 02 2006",
}

// Normalize converts s to the canonical YYYY-MM-DD form. It reports false
// when s is empty or cannot be parsed; unparseable input is logged, never
// returned as an error.
func Normalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	if canonicalDate.MatchString(s) {
		if _, err := time.Parse(Layout, s); err != nil {
			log.Warn().Str("input", s).Err(err).Msg("invalid calendar date")
			return "", false
		}
		return s, true
	}

	if i := strings.IndexByte(s, 'T'); i > 0 {
		datePart := s[:i]
		if canonicalDate.MatchString(datePart) {
			if _, err := time.Parse(Layout, datePart); err == nil {
				return datePart, true
			}
		}
	}

	// JavaScript appends " (Zone Name)" to Date.toString output.
	if i := strings.Index(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}

	for _, layout := range fallbackLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.UTC().Format(Layout), true
	}

	log.Warn().Str("input", s).Msg("unparseable date")
	return "", false
}

// NormalizePtr is Normalize over nullable values, as scanned from the
// database or decoded from optional JSON fields. The result is nil when the
// input is nil, empty or unparseable.
func NormalizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	out, ok := Normalize(*s)
	if !ok {
		return nil
	}
	return &out
}

var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04 PM",
	"3:04PM",
	"03:04 PM",
	"3:04:05 PM",
	"15:04:05.000",
}

// NormalizeTime converts a time of day to HH:MM:SS. Accepted inputs are
// 24-hour HH:MM or HH:MM:SS and 12-hour clock readings with AM/PM.
func NormalizeTime(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.Format(TimeLayout), true
	}
	return "", false
}
