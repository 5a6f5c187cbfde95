package recurrence

import (
	"strconv"
	"time"

	appLog "kalapa/internal/log"
	"kalapa/internal/model"
)

const (
	// DefaultMaxInstancesPerEvent is the safety ceiling on instances emitted
	// for a single master, applied regardless of the rule's own settings.
	DefaultMaxInstancesPerEvent = 365

	instanceSeparator = "-instance-"
)

// Window is the inclusive display range within which occurrences are
// materialized.
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultWindow spans one year back to two years ahead of now's calendar
// date, at local midnight in now's location.
func DefaultWindow(now time.Time) Window {
	return WindowAround(now, 1, 2)
}

// WindowAround spans pastYears back to futureYears ahead of now's date.
func WindowAround(now time.Time, pastYears, futureYears int) Window {
	y, m, d := now.Date()
	return Window{
		Start: time.Date(y-pastYears, m, d, 0, 0, 0, 0, now.Location()),
		End:   time.Date(y+futureYears, m, d, 0, 0, 0, 0, now.Location()),
	}
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxInstancesPerEvent caps instances per master. If zero,
	// DefaultMaxInstancesPerEvent is used.
	MaxInstancesPerEvent int
}

// ExpandResult wraps the flat list of events to display and the masters
// whose expansion stopped at the safety ceiling.
type ExpandResult struct {
	Events []model.Event `json:"events"`
	// TruncatedEvents records master IDs that hit MaxInstancesPerEvent.
	TruncatedEvents []string `json:"truncated_events,omitempty"`
}

// Expand replaces every recurring master in events by its occurrences
// within w. Standalone events are passed through, and instances already
// present in the input are dropped so that expanding an expanded list
// never produces instances of instances.
func Expand(events []model.Event, w Window) []model.Event {
	return ExpandEvents(events, ExpandConfig{RangeStart: w.Start, RangeEnd: w.End}).Events
}

// ExpandEvents is Expand with an explicit configuration. The input slice
// and everything reachable from it is left untouched; every returned
// event is an independent copy.
//
// Result order follows input order, with each master's instances in
// generation order. Consumers sort as they need.
func ExpandEvents(events []model.Event, cfg ExpandConfig) ExpandResult {
	if cfg.MaxInstancesPerEvent <= 0 {
		cfg.MaxInstancesPerEvent = DefaultMaxInstancesPerEvent
	}

	result := ExpandResult{Events: make([]model.Event, 0, len(events))}

	for _, ev := range events {
		switch {
		case ev.IsRecurringInstance:
			// Derived output fed back in; the master regenerates it.
			continue

		case !ev.Recurrence.Repeats():
			result.Events = append(result.Events, ev.Clone())

		default:
			instances, truncated := generate(ev, cfg.RangeStart, cfg.RangeEnd, cfg.MaxInstancesPerEvent)
			if truncated {
				result.TruncatedEvents = append(result.TruncatedEvents, ev.ID)
				appLog.Warn("expand: truncated occurrences for master due to cap",
					"id", ev.ID,
					"cap", cfg.MaxInstancesPerEvent,
				)
			}
			result.Events = append(result.Events, instances...)
		}
	}

	return result
}

// GenerateInstances materializes the occurrences of master that fall within
// [rangeStart, rangeEnd]. A master without a repeating rule, or without a
// FromDate to anchor the walk, is returned as the single element.
func GenerateInstances(master model.Event, rangeStart, rangeEnd time.Time) []model.Event {
	out, _ := generate(master, rangeStart, rangeEnd, DefaultMaxInstancesPerEvent)
	return out
}

func generate(master model.Event, rangeStart, rangeEnd time.Time, maxInstances int) ([]model.Event, bool) {
	rule := master.Recurrence
	if !rule.Repeats() || master.FromDate.IsZero() {
		return []model.Event{master.Clone()}, false
	}

	limit := rangeEnd
	if !rule.EndDate.IsZero() {
		if until := model.EndOfDay(rule.EndDate); until.Before(limit) {
			limit = until
		}
	}

	excepted := exceptionSet(rule)

	var span time.Duration
	if !master.ToDate.IsZero() {
		if d := master.ToDate.Sub(master.FromDate); d > 0 {
			span = d
		}
	}

	out := make([]model.Event, 0)
	materialized := 0

	// The walk always starts at the anchor so that day-of-week, day-of-month
	// and the materialization index do not depend on the window. Count and
	// the index are therefore counted from the anchor, not within the
	// window: a series ends on the same date whatever range is viewed.
	for cur := master.FromDate; !cur.After(limit); cur = NextOccurrence(cur, rule) {
		if rule.Count > 0 && materialized >= rule.Count {
			break
		}

		key := model.DateKey(cur)
		if _, skip := excepted[key]; skip {
			continue
		}

		index := materialized
		materialized++

		if cur.Before(rangeStart) {
			continue
		}
		if len(out) >= maxInstances {
			return out, true
		}

		inst := newInstance(master, cur, span, index)
		if patch, ok := rule.Overrides[key]; ok {
			patch.ApplyTo(&inst)
		}
		out = append(out, inst)
	}

	return out, false
}

func newInstance(master model.Event, start time.Time, span time.Duration, index int) model.Event {
	inst := master.Clone()
	inst.ID = InstanceID(master.ID, index)
	inst.FromDate = start
	inst.ToDate = start.Add(span)
	inst.IsRecurringInstance = true
	inst.OriginalEventID = master.ID
	if master.RecurrenceID != "" {
		inst.RecurrenceID = master.RecurrenceID
	} else {
		inst.RecurrenceID = master.ID
	}
	return inst
}

// InstanceID builds the synthetic id of the index-th occurrence.
func InstanceID(masterID string, index int) string {
	return masterID + instanceSeparator + strconv.Itoa(index)
}

// NextOccurrence advances t by one step of rule. Month and year steps use
// calendar arithmetic with normal date rollover (Jan 31 + 1 month lands in
// early March). Unknown frequencies step one day so that walks terminate.
func NextOccurrence(t time.Time, rule *model.RecurrenceRule) time.Time {
	interval := 1
	freq := model.FrequencyNone
	if rule != nil {
		freq = rule.Frequency
		if rule.Interval > 0 {
			interval = rule.Interval
		}
	}

	switch freq {
	case model.FrequencyDaily:
		return t.AddDate(0, 0, interval)
	case model.FrequencyWeekly:
		return t.AddDate(0, 0, 7*interval)
	case model.FrequencyMonthly:
		return t.AddDate(0, interval, 0)
	case model.FrequencyYearly:
		return t.AddDate(interval, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
