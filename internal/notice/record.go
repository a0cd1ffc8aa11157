// Package notice defines the domain model for harvested announcement
// listings: records, identity keys, and the parsing helpers shared by
// the static and browser-driven extraction paths.
package notice

import "time"

// KST is the source board's fixed UTC+9 offset. The board renders every
// timestamp in this zone, so parsing attaches it unconditionally.
var KST = time.FixedZone("KST", 9*60*60)

// Record is one announcement row in canonical form. Optional values are
// pointers; nil means the source did not yield them, never a sentinel.
type Record struct {
	Title     string
	Author    string
	Date      *time.Time
	Views     *int
	Pinned    bool
	SourceURL string

	// RowIndex is the record's position among the listing rows on the
	// page it came from. The browser-driven fetcher needs it to click
	// back into rows that expose no detail link.
	RowIndex int
}

// DedupKey returns the within-run deduplication key: the canonical URL
// when resolved, otherwise title plus timestamp.
func (r Record) DedupKey() string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	key := r.Title + "|"
	if r.Date != nil {
		key += FormatTimestamp(*r.Date)
	}
	return key
}

// RunState accumulates the identity keys of every record observed during
// the current run. The retirement pass consults it to decide which mirror
// documents are still pinned at the source. It is process-scoped and
// discarded when the run ends.
type RunState struct {
	urls      map[string]struct{}
	titleDays map[string]map[string]struct{}
}

// NewRunState returns an empty observation set.
func NewRunState() *RunState {
	return &RunState{
		urls:      make(map[string]struct{}),
		titleDays: make(map[string]map[string]struct{}),
	}
}

// Observe records the identity keys of a synchronized record.
func (s *RunState) Observe(rec Record) {
	if rec.SourceURL != "" {
		s.urls[rec.SourceURL] = struct{}{}
	}
	day := ""
	if rec.Date != nil {
		day = DayKey(*rec.Date)
	}
	days, ok := s.titleDays[rec.Title]
	if !ok {
		days = make(map[string]struct{})
		s.titleDays[rec.Title] = days
	}
	days[day] = struct{}{}
}

// HasURL reports whether the canonical URL was observed this run.
func (s *RunState) HasURL(url string) bool {
	_, ok := s.urls[url]
	return ok
}

// HasTitleDay reports whether the title was observed with the given
// day key. An empty day key matches records observed without a date.
func (s *RunState) HasTitleDay(title, day string) bool {
	days, ok := s.titleDays[title]
	if !ok {
		return false
	}
	_, ok = days[day]
	return ok
}
