package model

import (
	"slices"
	"time"

	"github.com/samber/mo"
)

// Frequency is the repetition unit of a RecurrenceRule.
type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// RecurrenceRule is attached to a master event only.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	// Interval is the step between occurrences, e.g. 2 = every other week.
	Interval int `json:"interval" yaml:"interval"`

	// EndDate is the inclusive last calendar date of repetition.
	EndDate time.Time `json:"end_date,omitzero" yaml:"end_date,omitempty"`
	// Count caps the number of materialized (non-excepted) occurrences.
	Count int `json:"count,omitempty" yaml:"count,omitempty"`

	// Exceptions are date keys whose occurrence is suppressed.
	Exceptions []string `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	// Overrides patch the displayed fields of single occurrences, by date key.
	Overrides map[string]OccurrencePatch `json:"overrides,omitempty" yaml:"-"`
}

// Repeats reports whether r describes an actual repetition.
func (r *RecurrenceRule) Repeats() bool {
	return r != nil && r.Frequency != "" && r.Frequency != FrequencyNone
}

// HasException reports whether key is excepted.
func (r *RecurrenceRule) HasException(key string) bool {
	return r != nil && slices.Contains(r.Exceptions, key)
}

// Clone returns a deep copy of r.
func (r *RecurrenceRule) Clone() *RecurrenceRule {
	if r == nil {
		return nil
	}
	out := *r
	out.Exceptions = slices.Clone(r.Exceptions)
	if r.Overrides != nil {
		out.Overrides = make(map[string]OccurrencePatch, len(r.Overrides))
		for k, p := range r.Overrides {
			out.Overrides[k] = p.Clone()
		}
	}
	return &out
}

// Event is the fundamental calendar entity. It is either a standalone
// event, a master carrying a Recurrence, or a transient instance produced
// by expansion (IsRecurringInstance).
type Event struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`

	FromDate time.Time `json:"from_date,omitzero"`
	// ToDate defaults to FromDate when zero.
	ToDate time.Time `json:"to_date,omitzero"`
	// FromTime / ToTime are free-form display strings such as "9:00 AM".
	FromTime string `json:"from_time,omitempty"`
	ToTime   string `json:"to_time,omitempty"`
	IsAllDay bool   `json:"is_all_day,omitempty"`

	Recurrence          *RecurrenceRule `json:"recurrence,omitempty"`
	RecurrenceID        string          `json:"recurrence_id,omitempty"`
	IsRecurringInstance bool            `json:"is_recurring_instance,omitempty"`
	OriginalEventID     string          `json:"original_event_id,omitempty"`

	// Reminder settings; nil means "use the global setting".
	ReminderEnabled       *bool `json:"reminder_enabled,omitempty"`
	ReminderMinutesBefore *int  `json:"reminder_minutes_before,omitempty"`
	ReminderHoursBefore   *int  `json:"reminder_hours_before,omitempty"`
}

// IsMaster reports whether e is a stored master of a recurring series.
func (e Event) IsMaster() bool {
	return !e.IsRecurringInstance && e.Recurrence.Repeats()
}

// EffectiveToDate returns ToDate, falling back to FromDate.
func (e Event) EffectiveToDate() time.Time {
	if e.ToDate.IsZero() {
		return e.FromDate
	}
	return e.ToDate
}

// Clone returns a deep copy of e; the copy shares no slices, maps or
// pointers with the original.
func (e Event) Clone() Event {
	out := e
	out.Links = slices.Clone(e.Links)
	out.Recurrence = e.Recurrence.Clone()
	out.ReminderEnabled = clonePtr(e.ReminderEnabled)
	out.ReminderMinutesBefore = clonePtr(e.ReminderMinutesBefore)
	out.ReminderHoursBefore = clonePtr(e.ReminderHoursBefore)
	return out
}

// CloneAll deep-copies a slice of events.
func CloneAll(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// In returns a deep copy of e with every date, including rule end and
// override dates, expressed in loc. Zero dates stay zero.
func (e Event) In(loc *time.Location) Event {
	out := e.Clone()
	if loc == nil {
		return out
	}
	out.FromDate = timeIn(out.FromDate, loc)
	out.ToDate = timeIn(out.ToDate, loc)
	if r := out.Recurrence; r != nil {
		r.EndDate = timeIn(r.EndDate, loc)
		for k, p := range r.Overrides {
			if v, ok := p.FromDate.Get(); ok {
				p.FromDate = mo.Some(v.In(loc))
			}
			if v, ok := p.ToDate.Get(); ok {
				p.ToDate = mo.Some(v.In(loc))
			}
			r.Overrides[k] = p
		}
	}
	return out
}

func timeIn(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(loc)
}
