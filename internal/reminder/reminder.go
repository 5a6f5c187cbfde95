package reminder

import (
	"slices"
	"strings"
	"time"

	"kalapa/internal/agenda"
	"kalapa/internal/model"
)

const (
	// UpcomingWindow bounds how far ahead reminders are planned.
	UpcomingWindow = 90 * 24 * time.Hour

	// practiceDayPrefix marks built-in seed events.
	practiceDayPrefix = "pre-"
)

// Settings mirror the user's notification preferences.
type Settings struct {
	PracticeDayReminders bool `yaml:"practice_day_reminders" json:"practice_day_reminders"`
	EventReminders       bool `yaml:"event_reminders" json:"event_reminders"`
	EventReminderMinutes int  `yaml:"event_reminder_minutes" json:"event_reminder_minutes"`
	AllDayReminderHours  int  `yaml:"all_day_reminder_hours" json:"all_day_reminder_hours"`
	// DailyQuote sends one quote every morning at DailyQuoteHour.
	DailyQuote bool `yaml:"daily_quote_notifications" json:"daily_quote_notifications"`
}

// DefaultSettings returns the out-of-the-box preferences.
func DefaultSettings() Settings {
	return Settings{
		PracticeDayReminders: true,
		EventReminders:       true,
		EventReminderMinutes: 15,
		AllDayReminderHours:  12,
	}
}

// Enabled reports whether any notification kind is switched on.
func (s Settings) Enabled() bool {
	return s.PracticeDayReminders || s.EventReminders || s.DailyQuote
}

// Reminder is a single planned notification.
type Reminder struct {
	EventID string    `json:"event_id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	At      time.Time `json:"at"`
	// EventStart is the anchor the lead time was subtracted from.
	EventStart time.Time `json:"event_start"`
}

// Key identifies a reminder across re-plans.
func (r Reminder) Key() string {
	return r.EventID + "@" + r.At.UTC().Format(time.RFC3339)
}

// TriggerTime computes when ev's reminder fires. ok is false when the
// reminder is disabled, the event has no usable start, or the trigger is
// not after now.
func TriggerTime(ev model.Event, s Settings, now time.Time) (time.Time, bool) {
	if ev.ReminderEnabled != nil && !*ev.ReminderEnabled {
		return time.Time{}, false
	}
	start, ok := eventStart(ev)
	if !ok {
		return time.Time{}, false
	}

	var lead time.Duration
	if ev.IsAllDay {
		hours := s.AllDayReminderHours
		if ev.ReminderHoursBefore != nil {
			hours = *ev.ReminderHoursBefore
		}
		lead = time.Duration(max(hours, 0)) * time.Hour
	} else {
		minutes := s.EventReminderMinutes
		if ev.ReminderMinutesBefore != nil {
			minutes = *ev.ReminderMinutesBefore
		}
		lead = time.Duration(max(minutes, 0)) * time.Minute
	}

	at := start.Add(-lead)
	if !at.After(now) {
		return time.Time{}, false
	}
	return at, true
}

// eventStart anchors all-day events at midnight and timed events at their
// FromTime display string (midnight when it is empty).
func eventStart(ev model.Event) (time.Time, bool) {
	if ev.FromDate.IsZero() {
		return time.Time{}, false
	}
	base := model.StartOfDay(ev.FromDate)
	if ev.IsAllDay || strings.TrimSpace(ev.FromTime) == "" {
		return base, true
	}
	h, m, ok := agenda.ParseTimeOfDay(ev.FromTime)
	if !ok {
		return time.Time{}, false
	}
	// Wall clock on the event's date; DST change days are not 24h long.
	y, mo, d := base.Date()
	return time.Date(y, mo, d, h, m, 0, 0, base.Location()), true
}

// IsPracticeDay reports whether ev is one of the built-in practice days.
func IsPracticeDay(ev model.Event) bool {
	return strings.HasPrefix(ev.ID, practiceDayPrefix)
}

// Plan returns the reminders for events starting within UpcomingWindow of
// now, ordered by trigger time. Events should already be expanded.
func Plan(events []model.Event, s Settings, now time.Time) []Reminder {
	out := make([]Reminder, 0)
	if !s.Enabled() {
		return out
	}
	horizon := now.Add(UpcomingWindow)

	for _, ev := range events {
		if ev.FromDate.IsZero() || ev.FromDate.Before(model.StartOfDay(now)) || ev.FromDate.After(horizon) {
			continue
		}
		if IsPracticeDay(ev) && !s.PracticeDayReminders {
			continue
		}
		if !IsPracticeDay(ev) && !s.EventReminders {
			continue
		}
		at, ok := TriggerTime(ev, s, now)
		if !ok {
			continue
		}
		start, _ := eventStart(ev)
		out = append(out, Reminder{
			EventID:    ev.ID,
			Title:      titleOf(ev),
			Body:       bodyOf(ev),
			At:         at,
			EventStart: start,
		})
	}

	slices.SortStableFunc(out, func(a, b Reminder) int {
		return a.At.Compare(b.At)
	})
	return out
}

func titleOf(ev model.Event) string {
	if ev.Title == "" {
		return "Upcoming event"
	}
	return ev.Title
}

func bodyOf(ev model.Event) string {
	if ev.IsAllDay {
		return "All day event"
	}
	return "Starting soon"
}
