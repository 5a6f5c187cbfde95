package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	appLog "kalapa/internal/log"
	"kalapa/internal/model"
)

// SQLiteBackend stores one row per event with its JSON payload.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "0001_events",
		sql: `CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	{
		name: "0002_events_position_index",
		sql:  `CREATE INDEX IF NOT EXISTS idx_events_position ON events(position)`,
	},
}

// NewSQLiteBackend opens (creating if needed) the database at path and
// applies pending migrations.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	b := &SQLiteBackend{db: db, path: path}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		name TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return errors.Wrap(err, "create migrations table")
	}

	for _, m := range migrations {
		var n int
		if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _migrations WHERE name = ?`, m.name).Scan(&n); err != nil {
			return errors.Wrapf(err, "check migration %s", m.name)
		}
		if n > 0 {
			continue
		}

		err := b.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name) VALUES (?)`, m.name)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "apply migration %s", m.name)
		}
		appLog.Info("sqlite migration applied", "name", m.name, "path", b.path)
	}
	return nil
}

// Load reads all events in stored order.
func (b *SQLiteBackend) Load(ctx context.Context) ([]model.Event, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, payload FROM events ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// One corrupt row must not hide the rest of the calendar.
			appLog.Error("sqlite: skipping undecodable event", err, "id", id)
			continue
		}
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "iterate events")
}

// Save replaces the stored list in a single transaction.
func (b *SQLiteBackend) Save(ctx context.Context, events []model.Event) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
			return errors.Wrap(err, "clear events")
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (id, position, payload) VALUES (?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare insert")
		}
		defer stmt.Close()

		for i, ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				return errors.Wrapf(err, "encode event %s", ev.ID)
			}
			if _, err := stmt.ExecContext(ctx, ev.ID, i, string(payload)); err != nil {
				return errors.Wrapf(err, "insert event %s", ev.ID)
			}
		}
		return nil
	})
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}
