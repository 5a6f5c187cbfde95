package ics

import (
	"slices"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"kalapa/internal/agenda"
	"kalapa/internal/model"
	"kalapa/internal/recurrence"
)

const productName = "kalapa"

// ContentType is the media type of Export's output.
const ContentType = "text/calendar; charset=utf-8"

// Export renders stored events as an iCalendar document. Masters become a
// VEVENT with RRULE and EXDATE plus one RECURRENCE-ID VEVENT per override;
// expanded instances in events are skipped.
func Export(events []model.Event, now time.Time) []byte {
	cal := ical.NewCalendarFor(productName)
	cal.SetMethod(ical.MethodPublish)
	cal.SetName("kalapa")

	for _, ev := range events {
		if ev.IsRecurringInstance || ev.FromDate.IsZero() {
			continue
		}

		ve := cal.AddEvent(ev.ID)
		writeCommon(ve, ev, now)

		if !ev.IsMaster() {
			continue
		}
		rule := ev.Recurrence
		ve.AddRrule(toROption(ev).RRuleString())
		for _, key := range rule.Exceptions {
			if ev.IsAllDay {
				ve.AddExdate(occurrenceValue(ev, key), ical.WithValue(string(ical.ValueDataTypeDate)))
			} else {
				ve.AddExdate(occurrenceValue(ev, key))
			}
		}

		keys := make([]string, 0, len(rule.Overrides))
		for k := range rule.Overrides {
			if !rule.HasException(k) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, key := range keys {
			occ := ev.Clone()
			occ.Recurrence = nil
			start := occurrenceDate(ev, key, ev.FromDate.Location())
			occ.ToDate = start.Add(ev.EffectiveToDate().Sub(ev.FromDate))
			occ.FromDate = start
			rule.Overrides[key].ApplyTo(&occ)

			ov := cal.AddEvent(ev.ID)
			writeCommon(ov, occ, now)
			if ev.IsAllDay {
				ov.SetProperty(ical.ComponentPropertyRecurrenceId, occurrenceValue(ev, key), ical.WithValue(string(ical.ValueDataTypeDate)))
			} else {
				ov.SetProperty(ical.ComponentPropertyRecurrenceId, occurrenceValue(ev, key))
			}
		}
	}

	return []byte(cal.Serialize())
}

func writeCommon(ve *ical.VEvent, ev model.Event, now time.Time) {
	ve.SetDtStampTime(now)
	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if len(ev.Links) > 0 {
		ve.SetURL(ev.Links[0])
	}

	if ev.IsAllDay {
		ve.SetAllDayStartAt(ev.FromDate)
		ve.SetAllDayEndAt(ev.EffectiveToDate().AddDate(0, 0, 1))
		return
	}

	start := clockOn(ev.FromDate, ev.FromTime)
	end := clockOn(ev.EffectiveToDate(), ev.ToTime)
	if ev.ToTime == "" || !end.After(start) {
		end = start.Add(time.Hour)
	}
	ve.SetStartAt(start)
	ve.SetEndAt(end)
}

// clockOn places a display time such as "9:30 AM" on day's date. An
// unparsable time keeps day's own clock.
func clockOn(day time.Time, clock string) time.Time {
	h, m, ok := agenda.ParseTimeOfDay(clock)
	if !ok {
		return day
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location())
}

// occurrenceValue is the EXDATE / RECURRENCE-ID value of the unpatched
// occurrence of master on key.
func occurrenceValue(master model.Event, key string) string {
	d := occurrenceDate(master, key, master.FromDate.Location())
	if master.IsAllDay {
		return d.Format("20060102")
	}
	return clockOn(d, master.FromTime).UTC().Format("20060102T150405Z")
}

// toROption builds the RRULE of master. COUNT includes the excepted dates
// inside the series, which EXDATE then removes again.
func toROption(master model.Event) *rrule.ROption {
	rule := master.Recurrence
	opt := &rrule.ROption{
		Interval: max(rule.Interval, 1),
		Count:    recurrence.StepsForCount(master),
	}
	switch rule.Frequency {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case model.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
	case model.FrequencyYearly:
		opt.Freq = rrule.YEARLY
	default:
		// Expansion steps unknown frequencies one day at a time.
		opt.Freq = rrule.DAILY
		opt.Interval = 1
	}
	if !rule.EndDate.IsZero() {
		opt.Until = model.EndOfDay(rule.EndDate)
	}
	return opt
}
