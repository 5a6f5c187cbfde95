package recurrence

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"kalapa/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func january2026() Window {
	return Window{Start: date(2026, 1, 1), End: model.EndOfDay(date(2026, 1, 31))}
}

func weeklyMaster() model.Event {
	return model.Event{
		ID:       "m1",
		Title:    "Practice",
		FromDate: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), // Monday
		ToDate:   time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC),
		FromTime: "9:00 AM",
		ToTime:   "10:30 AM",
		Recurrence: &model.RecurrenceRule{
			Frequency: model.FrequencyWeekly,
			Interval:  1,
		},
	}
}

func dateKeys(events []model.Event) []string {
	keys := make([]string, 0, len(events))
	for _, ev := range events {
		keys = append(keys, model.DateKey(ev.FromDate))
	}
	return keys
}

func ids(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}

func TestExpand_WeeklyJanuary(t *testing.T) {
	got := Expand([]model.Event{weeklyMaster()}, january2026())

	require.Len(t, got, 4)
	assert.Equal(t, []string{"2026-01-05", "2026-01-12", "2026-01-19", "2026-01-26"}, dateKeys(got))
	assert.Equal(t, []string{"m1-instance-0", "m1-instance-1", "m1-instance-2", "m1-instance-3"}, ids(got))
	for _, ev := range got {
		assert.Equal(t, "m1", ev.OriginalEventID)
		assert.Equal(t, "m1", ev.RecurrenceID)
		assert.True(t, ev.IsRecurringInstance)
		assert.Equal(t, time.Monday, ev.FromDate.Weekday())
		assert.Equal(t, 90*time.Minute, ev.ToDate.Sub(ev.FromDate))
		assert.Equal(t, "Practice", ev.Title)
	}
}

func TestExpand_ExceptionSuppressesOneDate(t *testing.T) {
	master := weeklyMaster()
	master.Recurrence.Exceptions = []string{"2026-01-12"}

	got := Expand([]model.Event{master}, january2026())

	require.Len(t, got, 3)
	assert.Equal(t, []string{"2026-01-05", "2026-01-19", "2026-01-26"}, dateKeys(got))
	// Indices follow generation order, not calendar position.
	assert.Equal(t, []string{"m1-instance-0", "m1-instance-1", "m1-instance-2"}, ids(got))
}

func TestExpand_OverrideTakesPrecedence(t *testing.T) {
	master := weeklyMaster()
	master.Recurrence.Overrides = map[string]model.OccurrencePatch{
		"2026-01-19": {Title: mo.Some("Rescheduled")},
	}

	got := Expand([]model.Event{master}, january2026())
	require.Len(t, got, 4)

	plain := Expand([]model.Event{weeklyMaster()}, january2026())
	overridden := got[2]
	assert.Equal(t, "Rescheduled", overridden.Title)

	expected := plain[2]
	expected.Title = "Rescheduled"
	expected.Recurrence = overridden.Recurrence
	assert.Equal(t, expected, overridden)
	assert.Equal(t, "Practice", got[1].Title)
	assert.Equal(t, "Practice", got[3].Title)
}

func TestExpand_OverrideMovesTimeButNotIdentity(t *testing.T) {
	master := weeklyMaster()
	moved := time.Date(2026, 1, 20, 14, 0, 0, 0, time.UTC)
	master.Recurrence.Overrides = map[string]model.OccurrencePatch{
		"2026-01-19": {
			FromDate: mo.Some(moved),
			ToDate:   mo.Some(moved.Add(time.Hour)),
			FromTime: mo.Some("2:00 PM"),
			IsAllDay: mo.Some(true),
			Links:    mo.Some([]string{"https://example.org/room"}),
		},
	}

	got := Expand([]model.Event{master}, january2026())
	require.Len(t, got, 4)

	inst := got[2]
	assert.Equal(t, "m1-instance-2", inst.ID)
	assert.Equal(t, "m1", inst.OriginalEventID)
	assert.Equal(t, "m1", inst.RecurrenceID)
	assert.True(t, inst.IsRecurringInstance)
	assert.Equal(t, moved, inst.FromDate)
	assert.Equal(t, moved.Add(time.Hour), inst.ToDate)
	assert.Equal(t, "2:00 PM", inst.FromTime)
	assert.True(t, inst.IsAllDay)
	assert.Equal(t, []string{"https://example.org/room"}, inst.Links)
}

func TestExpand_ExceptionWinsOverOverride(t *testing.T) {
	master := weeklyMaster()
	master.Recurrence.Exceptions = []string{"2026-01-19"}
	master.Recurrence.Overrides = map[string]model.OccurrencePatch{
		"2026-01-19": {Title: mo.Some("Ghost")},
	}

	got := Expand([]model.Event{master}, january2026())

	assert.Equal(t, []string{"2026-01-05", "2026-01-12", "2026-01-26"}, dateKeys(got))
	for _, ev := range got {
		assert.NotEqual(t, "Ghost", ev.Title)
	}
}

func TestExpand_MonthlyOverflowRollsOver(t *testing.T) {
	master := model.Event{
		ID:       "rent",
		Title:    "Rent",
		FromDate: date(2026, 1, 31),
		Recurrence: &model.RecurrenceRule{
			Frequency: model.FrequencyMonthly,
			Interval:  1,
		},
	}
	w := Window{Start: date(2026, 1, 1), End: model.EndOfDay(date(2026, 4, 30))}

	got := Expand([]model.Event{master}, w)

	// Feb 31 does not exist and rolls into March; later steps keep the
	// rolled-over day.
	assert.Equal(t, []string{"2026-01-31", "2026-03-03", "2026-04-03"}, dateKeys(got))
}

func TestExpand_YearlyLeapDay(t *testing.T) {
	master := model.Event{
		ID:       "leap",
		Title:    "Leap",
		FromDate: date(2024, 2, 29),
		Recurrence: &model.RecurrenceRule{
			Frequency: model.FrequencyYearly,
			Interval:  1,
		},
	}
	w := Window{Start: date(2024, 1, 1), End: date(2027, 12, 31)}

	got := Expand([]model.Event{master}, w)

	assert.Equal(t, []string{"2024-02-29", "2025-03-01", "2026-03-01", "2027-03-01"}, dateKeys(got))
}

func TestExpand_CountTerminates(t *testing.T) {
	master := model.Event{
		ID:       "m",
		Title:    "Three times",
		FromDate: date(2026, 2, 10),
		Recurrence: &model.RecurrenceRule{
			Frequency:  model.FrequencyMonthly,
			Interval:   1,
			Count:      3,
			Exceptions: []string{"2026-03-10"},
		},
	}
	w := Window{Start: date(2025, 1, 1), End: date(2030, 1, 1)}

	got := Expand([]model.Event{master}, w)

	// The excepted March occurrence does not count toward Count.
	assert.Equal(t, []string{"2026-02-10", "2026-04-10", "2026-05-10"}, dateKeys(got))
}

func TestExpand_EndDateIsInclusive(t *testing.T) {
	master := weeklyMaster()
	master.Recurrence.EndDate = date(2026, 1, 19)

	got := Expand([]model.Event{master}, january2026())

	// The 9:00 occurrence on the end date is still included.
	assert.Equal(t, []string{"2026-01-05", "2026-01-12", "2026-01-19"}, dateKeys(got))
}

func TestExpand_IntervalSteps(t *testing.T) {
	tests := []struct {
		name string
		freq model.Frequency
		n    int
		want []string
	}{
		{"every 3 days", model.FrequencyDaily, 3, []string{"2026-01-05", "2026-01-08", "2026-01-11"}},
		{"every 2 weeks", model.FrequencyWeekly, 2, []string{"2026-01-05", "2026-01-19", "2026-02-02"}},
		{"every 2 months", model.FrequencyMonthly, 2, []string{"2026-01-05", "2026-03-05", "2026-05-05"}},
		{"every 2 years", model.FrequencyYearly, 2, []string{"2026-01-05", "2028-01-05", "2030-01-05"}},
		{"zero interval acts as 1", model.FrequencyDaily, 0, []string{"2026-01-05", "2026-01-06", "2026-01-07"}},
		{"unknown frequency steps daily", model.Frequency("hourly"), 5, []string{"2026-01-05", "2026-01-06", "2026-01-07"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := model.Event{
				ID:         "s",
				Title:      "Step",
				FromDate:   date(2026, 1, 5),
				Recurrence: &model.RecurrenceRule{Frequency: tt.freq, Interval: tt.n, Count: 3},
			}
			got := Expand([]model.Event{master}, Window{Start: date(2026, 1, 1), End: date(2031, 1, 1)})
			assert.Equal(t, tt.want, dateKeys(got))
		})
	}
}

func TestExpand_WalkStartsAtAnchorBeforeWindow(t *testing.T) {
	master := weeklyMaster()
	w := Window{Start: date(2026, 1, 15), End: model.EndOfDay(date(2026, 1, 31))}

	got := Expand([]model.Event{master}, w)

	assert.Equal(t, []string{"2026-01-19", "2026-01-26"}, dateKeys(got))
	// Ids are counted from the anchor, so they match the full-month expansion.
	assert.Equal(t, []string{"m1-instance-2", "m1-instance-3"}, ids(got))
}

func TestExpand_CountIsNotPerWindow(t *testing.T) {
	master := weeklyMaster()
	master.Recurrence.Count = 3

	// The three occurrences are Jan 5, 12 and 19; a later window sees none
	// rather than three fresh ones.
	late := Window{Start: date(2026, 2, 1), End: model.EndOfDay(date(2026, 2, 28))}
	assert.Empty(t, Expand([]model.Event{master}, late))

	mid := Window{Start: date(2026, 1, 10), End: model.EndOfDay(date(2026, 2, 28))}
	got := Expand([]model.Event{master}, mid)
	assert.Equal(t, []string{"2026-01-12", "2026-01-19"}, dateKeys(got))
	assert.Equal(t, []string{"m1-instance-1", "m1-instance-2"}, ids(got))
}

func TestExpand_MasterAfterWindowProducesNothing(t *testing.T) {
	master := weeklyMaster()
	master.FromDate = date(2027, 1, 4)

	assert.Empty(t, Expand([]model.Event{master}, january2026()))
}

func TestExpand_SafetyCeiling(t *testing.T) {
	master := model.Event{
		ID:         "daily",
		Title:      "Every day",
		FromDate:   date(2026, 1, 1),
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: 1, Count: 1000},
	}
	res := ExpandEvents([]model.Event{master}, ExpandConfig{
		RangeStart: date(2026, 1, 1),
		RangeEnd:   date(2028, 12, 31),
	})

	assert.Len(t, res.Events, DefaultMaxInstancesPerEvent)
	assert.Equal(t, []string{"daily"}, res.TruncatedEvents)

	res = ExpandEvents([]model.Event{master}, ExpandConfig{
		RangeStart:           date(2026, 1, 1),
		RangeEnd:             date(2026, 12, 31),
		MaxInstancesPerEvent: 10,
	})
	assert.Len(t, res.Events, 10)
	assert.Equal(t, "daily-instance-9", res.Events[9].ID)
}

func TestExpand_PassThroughAndDrop(t *testing.T) {
	standalone := model.Event{ID: "s1", Title: "Dentist", FromDate: date(2026, 1, 7)}
	noneRule := model.Event{
		ID: "s2", Title: "Once", FromDate: date(2026, 1, 8),
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyNone, Interval: 1},
	}
	leaked := model.Event{
		ID: "old-instance-0", Title: "Leaked", FromDate: date(2026, 1, 9),
		IsRecurringInstance: true, OriginalEventID: "old",
	}
	anchorless := model.Event{
		ID: "nodate", Title: "No date",
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly, Interval: 1},
	}

	got := Expand([]model.Event{standalone, noneRule, leaked, anchorless}, january2026())

	assert.Equal(t, []string{"s1", "s2", "nodate"}, ids(got))
	assert.Equal(t, standalone, got[0])
	assert.Equal(t, anchorless, got[2])
}

func TestExpand_StandaloneListIsUnchanged(t *testing.T) {
	events := []model.Event{
		{ID: "a", Title: "A", FromDate: date(2026, 1, 2), Links: []string{"x"}},
		{ID: "b", Title: "B", FromDate: date(2020, 1, 2)},
		{ID: "c", Title: "C"},
	}
	assert.Equal(t, events, Expand(events, january2026()))
}

func TestExpand_DoesNotMutateInput(t *testing.T) {
	master := weeklyMaster()
	master.Links = []string{"https://example.org"}
	master.Recurrence.Exceptions = []string{"2026-01-12"}
	master.Recurrence.Overrides = map[string]model.OccurrencePatch{
		"2026-01-19": {Title: mo.Some("Moved"), Links: mo.Some([]string{"y"})},
	}
	events := []model.Event{master, {ID: "s", Title: "S", FromDate: date(2026, 1, 3)}}
	before := model.CloneAll(events)

	got := Expand(events, january2026())
	require.NotEmpty(t, got)

	// Scribble over the output; the input must not notice.
	for i := range got {
		got[i].Title = "scribbled"
		if len(got[i].Links) > 0 {
			got[i].Links[0] = "scribbled"
		}
		if got[i].Recurrence != nil {
			got[i].Recurrence.Exceptions = append(got[i].Recurrence.Exceptions, "2026-01-26")
			got[i].Recurrence.Overrides["2026-01-05"] = model.OccurrencePatch{}
		}
	}

	assert.Equal(t, before, events)
}

func TestExpand_NoDoubleExpansion(t *testing.T) {
	masters := []model.Event{
		weeklyMaster(),
		{ID: "s", Title: "Standalone", FromDate: date(2026, 1, 14)},
	}
	first := Expand(masters, january2026())

	// A store that accidentally persisted the expanded output alongside the
	// masters yields exactly the same display list.
	polluted := model.CloneAll(masters)
	for _, ev := range first {
		if ev.IsRecurringInstance {
			polluted = append(polluted, ev)
		}
	}
	assert.Equal(t, first, Expand(polluted, january2026()))

	// Re-expanding the output alone never creates instances of instances.
	second := Expand(first, january2026())
	for _, ev := range second {
		assert.Equal(t, 0, strings.Count(ev.ID, "-instance-"), ev.ID)
	}
	assert.Equal(t, []string{"s"}, ids(second))
}

func TestExpand_KeepsGroupingID(t *testing.T) {
	master := weeklyMaster()
	master.RecurrenceID = "series-42"

	got := Expand([]model.Event{master}, january2026())
	for _, ev := range got {
		assert.Equal(t, "series-42", ev.RecurrenceID)
		assert.Equal(t, "m1", ev.OriginalEventID)
	}
}

func TestExpand_ConcurrentCallers(t *testing.T) {
	events := []model.Event{weeklyMaster()}
	want := Expand(events, january2026())

	var wg sync.WaitGroup
	results := make([][]model.Event, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Expand(events, january2026())
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestGenerateInstances_NonRecurringFallback(t *testing.T) {
	ev := model.Event{ID: "plain", Title: "Plain", FromDate: date(2026, 1, 3)}
	got := GenerateInstances(ev, date(2026, 1, 1), date(2026, 2, 1))
	assert.Equal(t, []model.Event{ev}, got)
}

// Daily and weekly walks must agree with an RFC 5545 engine.
func TestGenerateInstances_MatchesRRule(t *testing.T) {
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	rangeEnd := date(2026, 12, 31)

	tests := []struct {
		name string
		freq model.Frequency
		rf   rrule.Frequency
		n    int
	}{
		{"daily", model.FrequencyDaily, rrule.DAILY, 1},
		{"every 4 days", model.FrequencyDaily, rrule.DAILY, 4},
		{"weekly", model.FrequencyWeekly, rrule.WEEKLY, 1},
		{"fortnightly", model.FrequencyWeekly, rrule.WEEKLY, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := rrule.NewRRule(rrule.ROption{
				Freq:     tt.rf,
				Interval: tt.n,
				Dtstart:  start,
				Count:    40,
			})
			require.NoError(t, err)

			master := model.Event{
				ID:         "x",
				Title:      "x",
				FromDate:   start,
				Recurrence: &model.RecurrenceRule{Frequency: tt.freq, Interval: tt.n, Count: 40},
			}
			got := GenerateInstances(master, start, rangeEnd)

			want := r.Between(start, rangeEnd, true)
			require.Len(t, got, len(want))
			for i := range want {
				assert.True(t, want[i].Equal(got[i].FromDate), "occurrence %d: %s != %s", i, want[i], got[i].FromDate)
			}
		})
	}
}

func TestNextOccurrence_NilRule(t *testing.T) {
	assert.Equal(t, date(2026, 1, 2), NextOccurrence(date(2026, 1, 1), nil))
}

func TestDefaultWindow(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)
	w := DefaultWindow(now)
	assert.Equal(t, date(2025, 10, 19), w.Start)
	assert.Equal(t, date(2028, 10, 19), w.End)

	w = WindowAround(now, 0, 1)
	assert.Equal(t, date(2026, 10, 19), w.Start)
	assert.Equal(t, date(2027, 10, 19), w.End)
}
