// Package store keeps the authoritative list of master and standalone
// events and persists it through a pluggable Backend.
package store

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"kalapa/internal/model"
)

// Backend persists the full event list. Implementations must be safe to
// call from one goroutine at a time; Store serializes access.
type Backend interface {
	Load(ctx context.Context) ([]model.Event, error)
	Save(ctx context.Context, events []model.Event) error
	Close() error
}

// FileBackend stores events as a single JSON document.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path. The file is created on
// first Save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads all events. A missing file yields an empty list.
func (b *FileBackend) Load(_ context.Context) ([]model.Event, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Event{}, nil
		}
		return nil, errors.Wrap(err, "read events file")
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode events file %s", b.path)
	}
	if doc.Events == nil {
		doc.Events = []model.Event{}
	}
	return doc.Events, nil
}

// Save writes events atomically via a temp file and rename, 0600.
func (b *FileBackend) Save(_ context.Context, events []model.Event) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create events directory")
	}

	data, err := json.MarshalIndent(fileDocument{Version: fileVersion, Events: events}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode events")
	}

	tmp, err := os.CreateTemp(dir, ".kalapa-events-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	return errors.Wrap(os.Rename(tmpName, b.path), "replace events file")
}

func (b *FileBackend) Close() error { return nil }

const fileVersion = 1

type fileDocument struct {
	Version int           `json:"version"`
	Events  []model.Event `json:"events"`
}
