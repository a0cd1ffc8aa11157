package notice

import (
	"regexp"
	"time"
)

var (
	datePattern     = regexp.MustCompile(`(\d{4})[.\-](\d{2})[.\-](\d{2})`)
	timePattern     = regexp.MustCompile(`(\d{2}):(\d{2})(?::(\d{2}))?`)
	dateTimePattern = regexp.MustCompile(`\d{4}[.\-]\d{2}[.\-]\d{2}\s+\d{2}:\d{2}(?::\d{2})?`)
	dayKeyPattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

	// writtenAtPattern anchors a date to the board's author/registration
	// labels on detail pages.
	writtenAtPattern = regexp.MustCompile(`(?s)(작성일|등록일).*?(\d{4}[.\-]\d{2}[.\-]\d{2}(?:\s+\d{2}:\d{2}(?::\d{2})?)?)`)
)

// ParseDateTime extracts a board timestamp from free text. The date part
// is required; a missing time defaults to midnight, missing seconds to
// zero. Every result carries the fixed KST offset.
func ParseDateTime(text string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	year, month, day := atoi(m[1]), atoi(m[2]), atoi(m[3])

	hour, minute, second := 0, 0, 0
	if tm := timePattern.FindStringSubmatch(text); tm != nil {
		hour, minute = atoi(tm[1]), atoi(tm[2])
		if tm[3] != "" {
			second = atoi(tm[3])
		}
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, KST), true
}

// FormatTimestamp renders the canonical wire form, e.g.
// 2024-03-05T09:30:00+09:00.
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}

// DayKey truncates a timestamp to day precision for coarse identity
// comparisons.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DayKeyFromISO extracts a day key from a mirror-side timestamp string.
// It returns "" for empty input and falls back to the first ten
// characters when the string does not look like an ISO date.
func DayKeyFromISO(s string) string {
	if s == "" {
		return ""
	}
	if m := dayKeyPattern.FindString(s); m != "" {
		return m
	}
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// WrittenAtFromHTML searches markup (or any text) for the written-at
// label followed by a timestamp. Matches carrying a time component are
// preferred over date-only matches.
func WrittenAtFromHTML(text string) (time.Time, bool) {
	matches := writtenAtPattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return time.Time{}, false
	}
	for _, m := range matches {
		if dateTimePattern.MatchString(m[2]) {
			return ParseDateTime(m[2])
		}
	}
	return ParseDateTime(matches[0][2])
}

// WrittenAtFromText resolves a written-at timestamp from rendered page
// text: label-anchored first, then any date-time, then any bare date.
func WrittenAtFromText(text string) (time.Time, bool) {
	if ts, ok := WrittenAtFromHTML(text); ok {
		return ts, true
	}
	if m := dateTimePattern.FindString(text); m != "" {
		return ParseDateTime(m)
	}
	if m := datePattern.FindString(text); m != "" {
		return ParseDateTime(m)
	}
	return time.Time{}, false
}

// HasDateTime reports whether the text contains a full date-time match.
func HasDateTime(text string) bool {
	return dateTimePattern.MatchString(text)
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
