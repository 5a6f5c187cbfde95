package ics

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	appLog "kalapa/internal/log"
	"kalapa/internal/model"
)

// Syncer keeps the last successfully parsed event list of every
// subscription. A source that fails to fetch or parse keeps its previous
// events.
type Syncer struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
	cron    *cron.Cron

	mu       sync.RWMutex
	bySource map[string][]model.Event
	lastSync time.Time
}

// NewSyncer returns a Syncer for sources, parsing times in loc.
func NewSyncer(fetcher *Fetcher, sources []Source, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.Local
	}
	return &Syncer{
		fetcher:  fetcher,
		sources:  sources,
		loc:      loc,
		cron:     cron.New(),
		bySource: make(map[string][]model.Event),
	}
}

// Refresh fetches and parses every source once. The returned error joins
// the per-source failures; successful sources are applied regardless.
func (s *Syncer) Refresh(ctx context.Context) error {
	if len(s.sources) == 0 {
		return nil
	}

	results, errs := s.fetcher.FetchAll(ctx, s.sources)

	parsed := make(map[string][]model.Event, len(results))
	for _, res := range results {
		events, err := ParseICSIn(res.Source, res.Body, s.loc)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "source %s", res.Source.ID))
			continue
		}
		parsed[res.Source.ID] = events
	}

	s.mu.Lock()
	for id, events := range parsed {
		s.bySource[id] = events
	}
	s.lastSync = time.Now()
	s.mu.Unlock()

	appLog.Info("ics sync completed", "sources", len(s.sources), "ok", len(parsed), "failed", len(errs))
	if len(errs) > 0 {
		return errors.Errorf("%d of %d sources failed, first: %v", len(errs), len(s.sources), errs[0])
	}
	return nil
}

// Events returns copies of all subscription events in source order.
func (s *Syncer) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, src := range s.sources {
		out = append(out, model.CloneAll(s.bySource[src.ID])...)
	}
	return out
}

// LastSync reports when Refresh last completed.
func (s *Syncer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Start schedules Refresh on the cron spec and starts the runner.
func (s *Syncer) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled ics sync failed", err)
		}
	}); err != nil {
		return errors.Wrapf(err, "ics: invalid refresh spec %q", spec)
	}
	s.cron.Start()
	appLog.Info("ics sync scheduled", "spec", spec, "sources", len(s.sources))
	return nil
}

// Stop halts the runner and waits for a running refresh.
func (s *Syncer) Stop() {
	<-s.cron.Stop().Done()
}
