package recurrence

import (
	"slices"

	"kalapa/internal/model"
)

// MasterID returns the id of the stored event an edit of ev must target.
func MasterID(ev model.Event) string {
	if ev.IsRecurringInstance && ev.OriginalEventID != "" {
		return ev.OriginalEventID
	}
	return ev.ID
}

// WithOverride returns a copy of master in which the occurrence on dateKey
// carries patch, merged over any patch already stored for that date.
func WithOverride(master model.Event, dateKey string, patch model.OccurrencePatch) model.Event {
	out := master.Clone()
	if out.Recurrence == nil {
		return out
	}
	if out.Recurrence.Overrides == nil {
		out.Recurrence.Overrides = make(map[string]model.OccurrencePatch)
	}
	if existing, ok := out.Recurrence.Overrides[dateKey]; ok {
		patch = existing.Merge(patch)
	}
	out.Recurrence.Overrides[dateKey] = patch.Clone()
	return out
}

// WithException returns a copy of master in which the occurrence on
// dateKey no longer exists. A stale override for the date is dropped.
func WithException(master model.Event, dateKey string) model.Event {
	out := master.Clone()
	if out.Recurrence == nil {
		return out
	}
	if !slices.Contains(out.Recurrence.Exceptions, dateKey) {
		out.Recurrence.Exceptions = append(out.Recurrence.Exceptions, dateKey)
	}
	delete(out.Recurrence.Overrides, dateKey)
	if len(out.Recurrence.Overrides) == 0 {
		out.Recurrence.Overrides = nil
	}
	return out
}

// Label is the picker text for a rule. Weekly rules only distinguish
// interval 2; any other interval reads "Weekly". Daily rules are not
// offered by the picker and read as non-repeating.
func Label(rule *model.RecurrenceRule) string {
	if !rule.Repeats() {
		return "Does not repeat"
	}

	switch rule.Frequency {
	case model.FrequencyWeekly:
		if rule.Interval == 2 {
			return "Every 2 weeks"
		}
		return "Weekly"
	case model.FrequencyMonthly:
		return "Monthly"
	case model.FrequencyYearly:
		return "Yearly"
	default:
		return "Does not repeat"
	}
}
