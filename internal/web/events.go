package web

import (
	"net/http"
	"time"

	"kalapa/internal/agenda"
	"kalapa/internal/ics"
	"kalapa/internal/model"
	"kalapa/internal/recurrence"
	"kalapa/internal/reminder"
	"kalapa/internal/store"
)

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events          []model.Event `json:"events"`
	TruncatedEvents []string      `json:"truncated_events,omitempty"`
	RangeStart      time.Time     `json:"range_start"`
	RangeEnd        time.Time     `json:"range_end"`
	DisplayTimeZone string        `json:"display_timezone"`
}

type dayResponse struct {
	Date   string        `json:"date"`
	Label  string        `json:"label"`
	Events []model.Event `json:"events"`
}

type remindersResponse struct {
	Reminders []reminder.Reminder `json:"reminders"`
}

// sourceEvents is the built-in practice days merged with the stored list,
// followed by subscription events.
func (s *Server) sourceEvents() []model.Event {
	events := s.store.List()
	if s.cfg.SeedEvents {
		events = store.MergeSeeds(store.SeedEvents(s.loc), events)
	}
	if s.subs != nil {
		events = append(events, s.subs.Events()...)
	}
	return events
}

// Expand materializes every source event within [from, to] and keeps only
// what is visible in that range.
func (s *Server) Expand(from, to time.Time) recurrence.ExpandResult {
	res := recurrence.ExpandEvents(s.sourceEvents(), recurrence.ExpandConfig{
		RangeStart:           from,
		RangeEnd:             to,
		MaxInstancesPerEvent: s.cfg.MaxInstancesPerEvent,
	})
	res.Events = agenda.EventsInRange(res.Events, from, to)
	return res
}

// Upcoming returns the expanded events of the reminder horizon starting
// at now. It backs both /api/reminders and the reminder scheduler.
func (s *Server) Upcoming(now time.Time) []model.Event {
	now = now.In(s.loc)
	return s.Expand(model.StartOfDay(now), model.EndOfDay(now.Add(reminder.UpcomingWindow))).Events
}

// handleEvents returns the expanded, chronologically sorted events.
//
// GET /api/events?from=YYYY-MM-DD&to=YYYY-MM-DD
//   - both bounds are inclusive calendar dates in the configured timezone
//   - a missing bound falls back to the configured default window
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	win := recurrence.WindowAround(s.now().In(s.loc), s.cfg.Window.PastYears, s.cfg.Window.FutureYears)
	from, to := win.Start, model.EndOfDay(win.End)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := model.ParseDateKey(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := model.ParseDateKey(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		to = model.EndOfDay(t)
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	res := s.Expand(from, to)
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:          agenda.SortChronological(res.Events),
		TruncatedEvents: res.TruncatedEvents,
		RangeStart:      from,
		RangeEnd:        to,
		DisplayTimeZone: s.loc.String(),
	})
}

// handleDay returns the events starting on one date, all-day first.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseDateKey(r.PathValue("date"), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	res := s.Expand(day, model.EndOfDay(day))
	events := agenda.SortEvents(agenda.SortChronological(agenda.EventsForDate(res.Events, day)))
	writeJSON(w, http.StatusOK, dayResponse{
		Date:   model.DateKey(day),
		Label:  agenda.FormatFullDate(day),
		Events: events,
	})
}

func (s *Server) handleReminders(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, remindersResponse{
		Reminders: reminder.Plan(s.Upcoming(now), s.cfg.Reminders.Settings, now),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ics.Export(s.store.List(), s.now()))
}
