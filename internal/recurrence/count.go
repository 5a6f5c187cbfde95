package recurrence

import "kalapa/internal/model"

// StepsForCount is the number of steps from the anchor, excepted dates
// included, that yield the master's Count occurrences. This is the COUNT an
// RFC 5545 rule needs, since there EXDATE removes dates after counting.
// Zero means the rule has no count.
func StepsForCount(master model.Event) int {
	rule := master.Recurrence
	if !rule.Repeats() || rule.Count <= 0 || master.FromDate.IsZero() {
		return 0
	}

	excepted := exceptionSet(rule)
	steps, materialized := 0, 0
	for cur := master.FromDate; materialized < rule.Count; cur = NextOccurrence(cur, rule) {
		if !rule.EndDate.IsZero() && cur.After(model.EndOfDay(rule.EndDate)) {
			break
		}
		steps++
		if _, skip := excepted[model.DateKey(cur)]; !skip {
			materialized++
		}
	}
	return steps
}

// CountWithinSteps is the inverse of StepsForCount: how many of the first
// steps occurrences from the anchor are not excepted.
func CountWithinSteps(master model.Event, steps int) int {
	rule := master.Recurrence
	if !rule.Repeats() || steps <= 0 || master.FromDate.IsZero() {
		return 0
	}

	excepted := exceptionSet(rule)
	count := 0
	cur := master.FromDate
	for range steps {
		if _, skip := excepted[model.DateKey(cur)]; !skip {
			count++
		}
		cur = NextOccurrence(cur, rule)
	}
	return count
}

func exceptionSet(rule *model.RecurrenceRule) map[string]struct{} {
	out := make(map[string]struct{}, len(rule.Exceptions))
	for _, k := range rule.Exceptions {
		out[k] = struct{}{}
	}
	return out
}
