package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalapa/internal/config"
	"kalapa/internal/model"
	"kalapa/internal/store"
)

var fixedNow = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

type staticSubs []model.Event

func (s staticSubs) Events() []model.Event { return model.CloneAll(s) }

func newTestServer(t *testing.T, subs Subscriptions) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), store.NewFileBackend(filepath.Join(t.TempDir(), "events.json")), time.UTC)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.SeedEvents = false
	s := NewServer(cfg, st, subs)
	s.now = func() time.Time { return fixedNow }
	return s, st
}

func seedWeekly(t *testing.T, st *store.Store) {
	t.Helper()
	_, err := st.Create(context.Background(), model.Event{
		ID:       "m",
		Title:    "Team sync",
		FromDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		FromTime: "9:00 AM",
		Recurrence: &model.RecurrenceRule{
			Frequency: model.FrequencyWeekly,
			Interval:  1,
		},
	})
	require.NoError(t, err)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvents_ExpandsAndMergesSubscriptions(t *testing.T) {
	subs := staticSubs{{ID: "cal:holiday", Title: "Holiday", FromDate: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), IsAllDay: true}}
	s, st := newTestServer(t, subs)
	seedWeekly(t, st)
	_, err := st.DeleteOccurrence(context.Background(), "m", "2026-01-19")
	require.NoError(t, err)

	rec := do(t, s.Handler(), http.MethodGet, "/api/events?from=2026-01-01&to=2026-01-31", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[eventsResponse](t, rec)
	got := make([]string, 0, len(resp.Events))
	for _, ev := range resp.Events {
		got = append(got, model.DateKey(ev.FromDate)+" "+ev.ID)
	}
	assert.Equal(t, []string{
		"2026-01-05 m-instance-0",
		"2026-01-12 cal:holiday",
		"2026-01-12 m-instance-1",
		"2026-01-26 m-instance-2",
	}, got)
	assert.Equal(t, "UTC", resp.DisplayTimeZone)
}

func TestEvents_DefaultWindowAndValidation(t *testing.T) {
	s, st := newTestServer(t, nil)
	_, err := st.Create(context.Background(), model.Event{
		ID:         "d",
		Title:      "Journal",
		FromDate:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: 1},
	})
	require.NoError(t, err)

	rec := do(t, s.Handler(), http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[eventsResponse](t, rec)
	assert.True(t, resp.RangeStart.Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)))
	// A daily series across the three-year default window hits the ceiling.
	assert.Len(t, resp.Events, config.DefaultMaxInstances)
	assert.Equal(t, []string{"d"}, resp.TruncatedEvents)

	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/events?from=01/02/2026", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/events?from=2026-02-01&to=2026-01-01", "").Code)
}

func TestDay_AllDayFirst(t *testing.T) {
	subs := staticSubs{{ID: "cal:holiday", Title: "Holiday", FromDate: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), IsAllDay: true}}
	s, st := newTestServer(t, subs)
	seedWeekly(t, st)

	rec := do(t, s.Handler(), http.MethodGet, "/api/days/2026-01-12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[dayResponse](t, rec)
	assert.Equal(t, "January 12, 2026", resp.Label)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "cal:holiday", resp.Events[0].ID)
	assert.Equal(t, "m-instance-1", resp.Events[1].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/days/tomorrow", "").Code)
}

func TestMasters_CRUD(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/masters",
		`{"title":"Practice","from_date":"2026-01-06T00:00:00Z","recurrence":{"frequency":"weekly","interval":2}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[masterDTO](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Every 2 weeks", created.RecurrenceLabel)

	rec = do(t, h, http.MethodGet, "/api/masters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[mastersResponse](t, rec).Masters, 1)

	rec = do(t, h, http.MethodPut, "/api/masters/"+created.ID+"-instance-3",
		`{"title":"Practice (all)","from_date":"2026-01-06T00:00:00Z","recurrence":{"frequency":"monthly","interval":1}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[masterDTO](t, rec)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Monthly", updated.RecurrenceLabel)

	rec = do(t, h, http.MethodGet, "/api/masters/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Practice (all)", decode[masterDTO](t, rec).Title)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/masters/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/masters/"+created.ID, "").Code)
}

func TestMasters_ErrorMapping(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedWeekly(t, st)
	_, err := st.Create(context.Background(), model.Event{ID: "single", Title: "One-off", FromDate: fixedNow})
	require.NoError(t, err)
	h := s.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing title", http.MethodPost, "/api/masters", `{"from_date":"2026-01-06T00:00:00Z"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/masters", `{"title":"x","colour":"red"}`, http.StatusBadRequest},
		{"duplicate id", http.MethodPost, "/api/masters", `{"id":"m","title":"x","from_date":"2026-01-06T00:00:00Z"}`, http.StatusConflict},
		{"update missing", http.MethodPut, "/api/masters/nope", `{"title":"x","from_date":"2026-01-06T00:00:00Z"}`, http.StatusNotFound},
		{"occurrence of single", http.MethodDelete, "/api/masters/single/occurrences/2026-01-10", "", http.StatusConflict},
		{"bad occurrence date", http.MethodDelete, "/api/masters/m/occurrences/someday", "", http.StatusBadRequest},
		{"wrong method", http.MethodPatch, "/api/masters/m", `{}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, h, tt.method, tt.path, tt.body).Code)
		})
	}
}

func TestOccurrences_EditAndDelete(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedWeekly(t, st)
	h := s.Handler()

	rec := do(t, h, http.MethodPut, "/api/masters/m-instance-1/occurrences/2026-01-12", `{"title":"Offsite","from_time":"1:00 PM"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/masters/m/occurrences/2026-01-19", "")
	require.Equal(t, http.StatusOK, rec.Code)
	master := decode[masterDTO](t, rec)
	assert.Equal(t, []string{"2026-01-19"}, master.Recurrence.Exceptions)

	rec = do(t, h, http.MethodGet, "/api/events?from=2026-01-05&to=2026-01-25", "")
	resp := decode[eventsResponse](t, rec)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "Team sync", resp.Events[0].Title)
	assert.Equal(t, "Offsite", resp.Events[1].Title)
	assert.Equal(t, "1:00 PM", resp.Events[1].FromTime)
	assert.Equal(t, "m-instance-1", resp.Events[1].ID)
}

func TestReminders(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedWeekly(t, st)

	rec := do(t, s.Handler(), http.MethodGet, "/api/reminders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[remindersResponse](t, rec)
	require.NotEmpty(t, resp.Reminders)
	first := resp.Reminders[0]
	assert.Equal(t, "m-instance-1", first.EventID)
	assert.True(t, first.At.Equal(time.Date(2026, 1, 12, 8, 45, 0, 0, time.UTC)))
}

func TestExport(t *testing.T) {
	s, st := newTestServer(t, nil)
	seedWeekly(t, st)

	rec := do(t, s.Handler(), http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "RRULE:FREQ=WEEKLY;INTERVAL=1")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Team sync")
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	rec := do(t, h, http.MethodGet, "/api/masters", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/masters", nil)
	req.SetBasicAuth("admin", "pw")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/masters", nil)
	req.SetBasicAuth("admin", "wrong")
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestSeedEvents_MergedIntoViews(t *testing.T) {
	s, st := newTestServer(t, nil)
	s.cfg.SeedEvents = true
	s.now = func() time.Time { return time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC) }
	seedWeekly(t, st)

	rec := do(t, s.Handler(), http.MethodGet, "/api/days/2026-01-06", "")
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode[dayResponse](t, rec)
	require.Len(t, day.Events, 1)
	assert.Equal(t, "pre-added-0", day.Events[0].ID)
	assert.Equal(t, "Medicine Buddha Day", day.Events[0].Title)

	// Seeds are read-only views, never written to the store.
	assert.Len(t, st.List(), 1)

	rec = do(t, s.Handler(), http.MethodGet, "/api/reminders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	practice := 0
	for _, r := range decode[remindersResponse](t, rec).Reminders {
		if strings.HasPrefix(r.EventID, store.SeedPrefix) {
			practice++
		}
	}
	assert.Equal(t, 3, practice)

	s.cfg.Reminders.PracticeDayReminders = false
	rec = do(t, s.Handler(), http.MethodGet, "/api/reminders", "")
	reminders := decode[remindersResponse](t, rec).Reminders
	require.NotEmpty(t, reminders)
	for _, r := range reminders {
		assert.False(t, strings.HasPrefix(r.EventID, store.SeedPrefix), r.EventID)
	}
}

func TestMasters_ReloadKeepsDisplayZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "events.json")

	open := func() *Server {
		st, err := store.New(context.Background(), store.NewFileBackend(path), ny)
		require.NoError(t, err)
		cfg := config.DefaultConfig()
		cfg.Timezone = "America/New_York"
		cfg.SeedEvents = false
		s := NewServer(cfg, st, nil)
		s.now = func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, ny) }
		return s
	}

	s := open()
	body := `{"id":"m","title":"Monday class","from_date":"2026-07-06T00:00:00-04:00","is_all_day":true,"recurrence":{"frequency":"weekly","interval":1}}`
	require.Equal(t, http.StatusCreated, do(t, s.Handler(), http.MethodPost, "/api/masters", body).Code)

	for _, srv := range []*Server{s, open()} {
		rec := do(t, srv.Handler(), http.MethodGet, "/api/days/2026-12-07", "")
		require.Equal(t, http.StatusOK, rec.Code)
		day := decode[dayResponse](t, rec)
		require.Len(t, day.Events, 1)
		assert.Equal(t, "2026-12-07", model.DateKey(day.Events[0].FromDate.In(ny)))
	}
}
