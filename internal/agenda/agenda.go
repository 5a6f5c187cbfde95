// Package agenda holds the display-side helpers that consume an expanded
// event list: per-day filtering, ordering and month arithmetic.
package agenda

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"kalapa/internal/model"
)

// IsSameDay reports whether a and b share a calendar date in a's location.
func IsSameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// EventsForDate returns events starting on day's calendar date. Events
// without a FromDate never match.
func EventsForDate(events []model.Event, day time.Time) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.FromDate.IsZero() {
			continue
		}
		if IsSameDay(day, ev.FromDate) {
			out = append(out, ev)
		}
	}
	return out
}

// HasEventsOnDate reports whether any event starts on day.
func HasEventsOnDate(events []model.Event, day time.Time) bool {
	return len(EventsForDate(events, day)) > 0
}

// EventsInRange returns events whose span [FromDate, EffectiveToDate]
// intersects [from, to].
func EventsInRange(events []model.Event, from, to time.Time) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.FromDate.IsZero() {
			continue
		}
		if ev.FromDate.After(to) || ev.EffectiveToDate().Before(from) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// SortEvents returns a copy with all-day events first; relative order is
// otherwise kept.
func SortEvents(events []model.Event) []model.Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b model.Event) int {
		return compareAllDay(a, b)
	})
	return out
}

// SortChronological returns a copy ordered by start date, then all-day
// first, then time of day, then id.
func SortChronological(events []model.Event) []model.Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b model.Event) int {
		if c := model.StartOfDay(a.FromDate).Compare(model.StartOfDay(b.FromDate)); c != 0 {
			return c
		}
		if c := compareAllDay(a, b); c != 0 {
			return c
		}
		if c := cmp.Compare(minuteOfDay(a), minuteOfDay(b)); c != 0 {
			return c
		}
		if c := a.FromDate.Compare(b.FromDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func compareAllDay(a, b model.Event) int {
	switch {
	case a.IsAllDay && !b.IsAllDay:
		return -1
	case !a.IsAllDay && b.IsAllDay:
		return 1
	default:
		return 0
	}
}

// minuteOfDay prefers the display time; unparsable strings fall back to
// the FromDate clock.
func minuteOfDay(ev model.Event) int {
	if h, m, ok := ParseTimeOfDay(ev.FromTime); ok {
		return h*60 + m
	}
	return ev.FromDate.Hour()*60 + ev.FromDate.Minute()
}

// ParseTimeOfDay parses 12-hour display strings like "9:00 AM" or "7 pm".
func ParseTimeOfDay(s string) (hour, minute int, ok bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	var meridiem string
	switch {
	case strings.HasSuffix(s, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(s, "PM"):
		meridiem = "PM"
	default:
		return 0, 0, false
	}
	clock := strings.TrimSpace(strings.TrimSuffix(s, meridiem))

	var h, m int
	if strings.Contains(clock, ":") {
		hh, mm, _ := strings.Cut(clock, ":")
		if len(mm) != 2 || !digits(hh, 1, 2) || !digits(mm, 2, 2) {
			return 0, 0, false
		}
		h, _ = strconv.Atoi(hh)
		m, _ = strconv.Atoi(mm)
	} else {
		if !digits(clock, 1, 2) {
			return 0, 0, false
		}
		h, _ = strconv.Atoi(clock)
	}
	if h > 12 || m > 59 {
		return 0, 0, false
	}

	switch {
	case meridiem == "PM" && h < 12:
		h += 12
	case meridiem == "AM" && h == 12:
		h = 0
	}
	return h, m, true
}

func digits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseLinks splits newline-separated text into trimmed, non-empty links.
func ParseLinks(text string) []string {
	out := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if link := strings.TrimSpace(line); link != "" {
			out = append(out, link)
		}
	}
	return out
}

// DaysInMonth returns the number of days of month in year.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekdayOfMonth returns the weekday of the 1st of month.
func FirstWeekdayOfMonth(year int, month time.Month) time.Weekday {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
}

// FormatFullDate renders "January 28, 2026".
func FormatFullDate(t time.Time) string {
	return t.Format("January 2, 2006")
}
