package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	appLog "kalapa/internal/log"
	"kalapa/internal/model"
)

const (
	// DefaultDispatchSpec is the cron spec used to look for due reminders.
	DefaultDispatchSpec = "@every 1m"

	// DailyQuoteHour is the local hour the daily quote goes out.
	DailyQuoteHour = 8

	dailyQuoteID    = "daily-quote"
	dailyQuoteTitle = "Daily Quote"
)

// Notifier delivers a due reminder. Device delivery lives outside this
// service; LogNotifier is the built-in implementation.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// Source supplies the expanded event list at dispatch time.
type Source func(now time.Time) []model.Event

// LogNotifier writes due reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, r Reminder) error {
	appLog.Info("reminder due",
		"event_id", r.EventID,
		"title", r.Title,
		"body", r.Body,
		"at", r.At,
	)
	return nil
}

// Scheduler periodically plans reminders from Source and hands the ones
// that became due since the previous run to a Notifier, each exactly once.
type Scheduler struct {
	cron     *cron.Cron
	source   Source
	notifier Notifier
	settings Settings
	loc      *time.Location
	now      func() time.Time
	quote    func() string

	mu      sync.Mutex
	lastRun time.Time
	sent    map[string]time.Time
}

// NewScheduler creates a Scheduler whose daily jobs run on loc's wall
// clock. loc may be nil for time.Local and now nil for time.Now.
func NewScheduler(source Source, notifier Notifier, settings Settings, loc *time.Location, now func() time.Time) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		source:   source,
		notifier: notifier,
		settings: settings,
		loc:      loc,
		now:      now,
		quote:    RandomQuote,
		lastRun:  now(),
		sent:     make(map[string]time.Time),
	}
}

// Start registers the dispatch job on spec and starts the cron runner.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultDispatchSpec
	}
	if _, err := s.cron.AddFunc(spec, func() {
		s.Tick(context.Background())
	}); err != nil {
		return errors.Wrapf(err, "reminder: invalid dispatch spec %q", spec)
	}
	if s.settings.DailyQuote {
		quoteSpec := fmt.Sprintf("0 %d * * *", DailyQuoteHour)
		if _, err := s.cron.AddFunc(quoteSpec, func() {
			s.SendDailyQuote(context.Background())
		}); err != nil {
			return errors.Wrap(err, "reminder: schedule daily quote")
		}
	}
	s.cron.Start()
	appLog.Info("reminder scheduler started",
		"spec", spec,
		"enabled", s.settings.Enabled(),
		"daily_quote", s.settings.DailyQuote,
		"timezone", s.loc.String(),
	)
	return nil
}

// SendDailyQuote delivers one quote through the Notifier.
func (s *Scheduler) SendDailyQuote(ctx context.Context) error {
	r := Reminder{
		EventID: dailyQuoteID,
		Title:   dailyQuoteTitle,
		Body:    s.quote(),
		At:      s.now().In(s.loc),
	}
	if err := s.notifier.Notify(ctx, r); err != nil {
		appLog.Error("daily quote delivery failed", err)
		return err
	}
	return nil
}

// Stop halts the cron runner and waits for a running dispatch to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	appLog.Info("reminder scheduler stopped")
}

// Tick dispatches reminders whose trigger lies in (lastRun, now] and
// returns how many were delivered.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	since := s.lastRun
	s.lastRun = now

	if !(s.settings.PracticeDayReminders || s.settings.EventReminders) || s.source == nil {
		return 0
	}

	delivered := 0
	for _, r := range Plan(s.source(now), s.settings, since) {
		if r.At.After(now) {
			break
		}
		key := r.Key()
		if _, done := s.sent[key]; done {
			continue
		}
		if err := s.notifier.Notify(ctx, r); err != nil {
			appLog.Error("reminder delivery failed", err, "event_id", r.EventID)
			continue
		}
		s.sent[key] = r.At
		delivered++
	}

	for key, at := range s.sent {
		if at.Before(now.Add(-UpcomingWindow)) {
			delete(s.sent, key)
		}
	}
	return delivered
}
