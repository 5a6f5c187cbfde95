package ics

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/pkg/errors"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	appLog "kalapa/internal/log"
	"kalapa/internal/model"
	"kalapa/internal/recurrence"
)

// timeOfDayLayout matches the display strings the agenda parses.
const timeOfDayLayout = "3:04 PM"

// vevent is the intermediate form of one VEVENT before overrides are
// attached to their masters.
type vevent struct {
	uid string
	seq int

	ev         model.Event
	cancelled  bool
	recurrence time.Time // RECURRENCE-ID, zero for masters
}

// ParseICS parses one ICS payload into stored-shape events using the local
// display zone.
func ParseICS(src Source, body []byte) ([]model.Event, error) {
	return ParseICSIn(src, body, time.Local)
}

// ParseICSIn parses one ICS payload into masters and standalone events in
// loc. Event ids are "<source id>:<uid>". RRULEs are reduced to
// frequency, interval, count and until; EXDATEs become exceptions and
// RECURRENCE-ID components become overrides on their master. Invalid
// VEVENTs are logged and skipped.
func ParseICSIn(src Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, errors.Wrap(err, "parse calendar")
	}

	masters := make(map[string]*vevent)
	order := make([]string, 0)
	overrides := make([]vevent, 0)

	for _, comp := range cal.Events() {
		v, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		if !v.recurrence.IsZero() {
			overrides = append(overrides, v)
			continue
		}
		if prev, ok := masters[v.uid]; ok {
			// Same UID twice: the higher SEQUENCE wins.
			if v.seq >= prev.seq {
				*prev = v
			}
			continue
		}
		vv := v
		masters[v.uid] = &vv
		order = append(order, v.uid)
	}

	for _, o := range overrides {
		m, ok := masters[o.uid]
		if !ok || !m.ev.IsMaster() {
			if o.cancelled {
				continue
			}
			// Orphan override: keep it visible as a standalone event.
			o.ev.ID = o.ev.ID + ":" + model.DateKey(o.recurrence.In(loc))
			masters[o.ev.ID] = &o
			order = append(order, o.ev.ID)
			continue
		}
		attachOverride(&m.ev, o, loc)
	}

	events := make([]model.Event, 0, len(order))
	for _, uid := range order {
		v := masters[uid]
		if v.cancelled {
			continue
		}
		if rule := v.ev.Recurrence; rule != nil && rule.Count > 0 {
			// RRULE COUNT includes the dates EXDATE removes; the rule model
			// counts only the occurrences that remain.
			rule.Count = recurrence.CountWithinSteps(v.ev, rule.Count)
			if rule.Count == 0 {
				appLog.Debug("ics: every counted occurrence is excluded, skipping", "id", v.ev.ID)
				continue
			}
		}
		events = append(events, v.ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func attachOverride(master *model.Event, o vevent, loc *time.Location) {
	key := model.DateKey(o.recurrence.In(loc))
	if o.cancelled {
		if !master.Recurrence.HasException(key) {
			master.Recurrence.Exceptions = append(master.Recurrence.Exceptions, key)
		}
		return
	}
	if master.Recurrence.HasException(key) {
		return
	}

	var p model.OccurrencePatch
	if o.ev.Title != master.Title {
		p.Title = mo.Some(o.ev.Title)
	}
	if o.ev.Description != master.Description {
		p.Description = mo.Some(o.ev.Description)
	}
	if !o.ev.FromDate.Equal(occurrenceDate(*master, key, loc)) {
		p.FromDate = mo.Some(o.ev.FromDate)
	}
	if !o.ev.ToDate.IsZero() && !o.ev.ToDate.Equal(o.ev.FromDate) {
		p.ToDate = mo.Some(o.ev.ToDate)
	}
	if o.ev.FromTime != master.FromTime {
		p.FromTime = mo.Some(o.ev.FromTime)
	}
	if o.ev.ToTime != master.ToTime {
		p.ToTime = mo.Some(o.ev.ToTime)
	}
	if o.ev.IsAllDay != master.IsAllDay {
		p.IsAllDay = mo.Some(o.ev.IsAllDay)
	}
	if p.IsEmpty() {
		return
	}
	if master.Recurrence.Overrides == nil {
		master.Recurrence.Overrides = make(map[string]model.OccurrencePatch)
	}
	master.Recurrence.Overrides[key] = p
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var out vevent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.uid = uidProp.Value
	out.ev.ID = src.ID + ":" + out.uid

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.cancelled = strings.EqualFold(p.Value, string(ical.ObjectStatusCancelled))
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil && p.Value != "" {
		out.ev.Links = []string{p.Value}
	}
	if strings.TrimSpace(out.ev.Title) == "" {
		out.ev.Title = "(untitled)"
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.Errorf("%s: missing DTSTART", out.uid)
	}
	out.ev.IsAllDay = isDateValue(dtStart)

	if out.ev.IsAllDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, errors.Wrapf(err, "%s: DTSTART", out.uid)
		}
		out.ev.FromDate = inLoc(start, loc)
		// DTEND is exclusive for dates.
		if end, err := ve.GetAllDayEndAt(); err == nil {
			if last := inLoc(end, loc).AddDate(0, 0, -1); last.After(out.ev.FromDate) {
				out.ev.ToDate = last
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, errors.Wrapf(err, "%s: DTSTART", out.uid)
		}
		start = start.In(loc)
		out.ev.FromDate = model.StartOfDay(start)
		out.ev.FromTime = start.Format(timeOfDayLayout)
		if end, err := ve.GetEndAt(); err == nil && end.After(start) {
			end = end.In(loc)
			if d := model.StartOfDay(end); d.After(out.ev.FromDate) {
				out.ev.ToDate = d
			}
			out.ev.ToTime = end.Format(timeOfDayLayout)
		}
	}

	if ridProp := ve.GetProperty(ical.ComponentPropertyRecurrenceId); ridProp != nil {
		rid, err := parsePropertyTime(ridProp, loc)
		if err != nil {
			return out, errors.Wrapf(err, "%s: RECURRENCE-ID", out.uid)
		}
		out.recurrence = rid
		return out, nil
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		rule, err := parseRRule(rruleProp.Value, loc)
		if err != nil {
			return out, errors.Wrapf(err, "%s: RRULE", out.uid)
		}
		if rule != nil {
			out.ev.Recurrence = rule
			out.ev.RecurrenceID = out.ev.ID
		}
	}

	if out.ev.Recurrence != nil {
		for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
			for _, part := range strings.Split(p.Value, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				t, err := parseICSTime(part, tzidOf(p, loc))
				if err != nil {
					appLog.Debug("ics: skipping bad EXDATE", "uid", out.uid, "value", part)
					continue
				}
				key := model.DateKey(t.In(loc))
				if !out.ev.Recurrence.HasException(key) {
					out.ev.Recurrence.Exceptions = append(out.ev.Recurrence.Exceptions, key)
				}
			}
		}
	}

	return out, nil
}

// parseRRule maps an RRULE onto the supported rule shape. Sub-daily
// frequencies yield nil, meaning the event is imported as non-recurring.
func parseRRule(value string, loc *time.Location) (*model.RecurrenceRule, error) {
	opt, err := rrule.StrToROptionInLocation(value, loc)
	if err != nil {
		return nil, err
	}

	var freq model.Frequency
	switch opt.Freq {
	case rrule.DAILY:
		freq = model.FrequencyDaily
	case rrule.WEEKLY:
		freq = model.FrequencyWeekly
	case rrule.MONTHLY:
		freq = model.FrequencyMonthly
	case rrule.YEARLY:
		freq = model.FrequencyYearly
	default:
		appLog.Debug("ics: unsupported RRULE frequency, importing single event", "rrule", value)
		return nil, nil
	}

	if hasByParts(opt) {
		appLog.Debug("ics: dropping BY* parts of RRULE", "rrule", value)
	}

	rule := &model.RecurrenceRule{
		Frequency: freq,
		Interval:  max(opt.Interval, 1),
		Count:     opt.Count,
	}
	if !opt.Until.IsZero() {
		rule.EndDate = model.StartOfDay(opt.Until.In(loc))
	}
	return rule, nil
}

func hasByParts(opt *rrule.ROption) bool {
	return len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Bymonthday) > 0 ||
		len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Byweekday) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 ||
		len(opt.Byeaster) > 0
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parsePropertyTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseICSTime(p.Value, tzidOf(p, loc))
}

// tzidOf returns the zone named by the property's TZID parameter, or loc.
func tzidOf(p *ical.IANAProperty, loc *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			return l
		}
	}
	return loc
}

// parseICSTime parses DATE, local DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// inLoc keeps the calendar date of t but moves it to midnight in loc.
func inLoc(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// occurrenceDate is the FromDate an unpatched occurrence on key would have.
func occurrenceDate(master model.Event, key string, loc *time.Location) time.Time {
	d, err := model.ParseDateKey(key, loc)
	if err != nil {
		return time.Time{}
	}
	return d.Add(master.FromDate.Sub(model.StartOfDay(master.FromDate)))
}
