package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appLog "kalapa/internal/log"
	"kalapa/internal/model"
	"kalapa/internal/recurrence"
)

var (
	ErrNotFound     = errors.New("event not found")
	ErrConflict     = errors.New("event id already exists")
	ErrNotRecurring = errors.New("event is not recurring")
	ErrInvalidEvent = errors.New("invalid event")
)

// Driver names accepted by OpenBackend.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// OpenBackend builds the Backend for driver at path.
func OpenBackend(ctx context.Context, driver, path string) (Backend, error) {
	switch driver {
	case DriverFile, "":
		return NewFileBackend(path), nil
	case DriverSQLite:
		return NewSQLiteBackend(ctx, path)
	default:
		return nil, errors.Errorf("unknown storage driver %q", driver)
	}
}

// Store is the single source of truth for master and standalone events.
// Readers always receive deep copies, so callers may expand or modify
// them freely.
type Store struct {
	backend Backend
	loc     *time.Location

	mu     sync.RWMutex
	events []model.Event
}

// New loads the current list from backend. Every date is kept in loc, the
// display timezone, whatever offset it was persisted with; nil means
// time.Local.
func New(ctx context.Context, backend Backend, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	events, err := backend.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load events")
	}

	// Instances are never persisted; drop any that slipped in.
	kept := events[:0]
	for _, ev := range events {
		if ev.IsRecurringInstance {
			appLog.Warn("store: dropping persisted recurring instance", "id", ev.ID)
			continue
		}
		kept = append(kept, ev.In(loc))
	}

	appLog.Info("store loaded", "event_count", len(kept), "timezone", loc.String())
	return &Store{backend: backend, loc: loc, events: kept}, nil
}

// Location is the timezone stored dates are expressed in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// List returns copies of all stored events in insertion order.
func (s *Store) List() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneAll(s.events)
}

// Get returns the event with id. Instance ids resolve to their master.
func (s *Store) Get(id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.Event{}, ErrNotFound
	}
	return s.events[i].Clone(), nil
}

// Create validates and appends ev, generating an id when it has none.
func (s *Store) Create(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := Validate(ev); err != nil {
		return model.Event{}, err
	}

	var created model.Event
	err := s.mutate(ctx, func(events []model.Event) ([]model.Event, error) {
		if indexByID(events, ev.ID) >= 0 {
			return nil, ErrConflict
		}
		created = normalize(ev).In(s.loc)
		return append(events, created.Clone()), nil
	})
	return created, err
}

// Update replaces the stored event with the same id. This is the
// "all occurrences" edit for masters.
func (s *Store) Update(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := Validate(ev); err != nil {
		return model.Event{}, err
	}

	var updated model.Event
	err := s.mutate(ctx, func(events []model.Event) ([]model.Event, error) {
		i := indexByID(events, ev.ID)
		if i < 0 {
			return nil, ErrNotFound
		}
		updated = normalize(ev).In(s.loc)
		events[i] = updated.Clone()
		return events, nil
	})
	return updated, err
}

// Delete removes an event, or a whole series when id names a master or
// one of its instances.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, func(events []model.Event) ([]model.Event, error) {
		i := resolve(events, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		return append(events[:i], events[i+1:]...), nil
	})
}

// EditOccurrence stores patch as the override for the occurrence on
// dateKey of the series identified by id (master or instance id).
func (s *Store) EditOccurrence(ctx context.Context, id, dateKey string, patch model.OccurrencePatch) (model.Event, error) {
	if !model.ValidDateKey(dateKey) {
		return model.Event{}, errors.Wrapf(ErrInvalidEvent, "bad date key %q", dateKey)
	}
	return s.updateMaster(ctx, id, func(master model.Event) model.Event {
		return recurrence.WithOverride(master, dateKey, patch)
	})
}

// DeleteOccurrence suppresses the occurrence on dateKey of the series
// identified by id, discarding any override for that date.
func (s *Store) DeleteOccurrence(ctx context.Context, id, dateKey string) (model.Event, error) {
	if !model.ValidDateKey(dateKey) {
		return model.Event{}, errors.Wrapf(ErrInvalidEvent, "bad date key %q", dateKey)
	}
	return s.updateMaster(ctx, id, func(master model.Event) model.Event {
		return recurrence.WithException(master, dateKey)
	})
}

func (s *Store) updateMaster(ctx context.Context, id string, fn func(model.Event) model.Event) (model.Event, error) {
	var updated model.Event
	err := s.mutate(ctx, func(events []model.Event) ([]model.Event, error) {
		i := resolve(events, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		if !events[i].IsMaster() {
			return nil, ErrNotRecurring
		}
		updated = fn(events[i]).In(s.loc)
		events[i] = updated.Clone()
		return events, nil
	})
	return updated, err
}

// mutate applies fn to a copy of the list and persists the result; the
// in-memory list only changes when the backend accepted it.
func (s *Store) mutate(ctx context.Context, fn func([]model.Event) ([]model.Event, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(model.CloneAll(s.events))
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, next); err != nil {
		appLog.Error("store: persist failed", err, "event_count", len(next))
		return errors.Wrap(err, "persist events")
	}
	s.events = next
	return nil
}

func (s *Store) indexOf(id string) int {
	return resolve(s.events, id)
}

func indexByID(events []model.Event, id string) int {
	for i, ev := range events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

// resolve finds id directly, or the master of an "<id>-instance-<n>" id.
func resolve(events []model.Event, id string) int {
	if i := indexByID(events, id); i >= 0 {
		return i
	}
	if cut := strings.LastIndex(id, "-instance-"); cut > 0 {
		return indexByID(events, id[:cut])
	}
	return -1
}

// Validate checks what expansion and display rely on.
func Validate(ev model.Event) error {
	switch {
	case strings.TrimSpace(ev.ID) == "":
		return errors.Wrap(ErrInvalidEvent, "id is required")
	case strings.TrimSpace(ev.Title) == "":
		return errors.Wrap(ErrInvalidEvent, "title is required")
	case ev.FromDate.IsZero():
		return errors.Wrap(ErrInvalidEvent, "from_date is required")
	case !ev.ToDate.IsZero() && ev.ToDate.Before(ev.FromDate):
		return errors.Wrap(ErrInvalidEvent, "to_date is before from_date")
	case ev.IsRecurringInstance:
		return errors.Wrap(ErrInvalidEvent, "recurring instances are derived and cannot be stored")
	}

	if r := ev.Recurrence; r != nil {
		if !r.Frequency.Valid() {
			return errors.Wrapf(ErrInvalidEvent, "unknown frequency %q", r.Frequency)
		}
		if r.Interval < 0 || r.Count < 0 {
			return errors.Wrap(ErrInvalidEvent, "interval and count must not be negative")
		}
		for _, k := range r.Exceptions {
			if !model.ValidDateKey(k) {
				return errors.Wrapf(ErrInvalidEvent, "bad exception date key %q", k)
			}
		}
		for k := range r.Overrides {
			if !model.ValidDateKey(k) {
				return errors.Wrapf(ErrInvalidEvent, "bad override date key %q", k)
			}
		}
	}
	return nil
}

// normalize fills defaults that the expander would otherwise assume.
func normalize(ev model.Event) model.Event {
	out := ev.Clone()
	out.OriginalEventID = ""
	if out.Recurrence != nil && out.Recurrence.Interval == 0 {
		out.Recurrence.Interval = 1
	}
	return out
}
