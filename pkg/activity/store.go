// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/diamondlightsource/hebi-launcher/pkg/errors"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store persists activity snapshots.
type Store interface {
	// Load reads the most recent snapshot. A store that has never been
	// written returns an empty map, not an error.
	Load(ctx context.Context) (map[string]time.Time, error)

	// Save overwrites the snapshot.
	Save(ctx context.Context, snapshot map[string]time.Time) error
}

// FileStore keeps the snapshot as a JSON document on the durable volume.
// Writes go to a temp file in the same directory and are renamed into
// place so a reader never observes a torn snapshot.
type FileStore struct {
	path string
}

// NewFileStore creates a store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot file.
func (s *FileStore) Load(_ context.Context) (map[string]time.Time, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, errors.NewSnapshotError("failed to read activity snapshot", err)
	}

	var snapshot map[string]time.Time
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.NewSnapshotError("failed to decode activity snapshot", err)
	}
	if snapshot == nil {
		snapshot = map[string]time.Time{}
	}
	return snapshot, nil
}

// Save atomically overwrites the snapshot file.
func (s *FileStore) Save(_ context.Context, snapshot map[string]time.Time) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.NewSnapshotError("failed to encode activity snapshot", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.NewSnapshotError("failed to create snapshot directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.NewSnapshotError("failed to create snapshot temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewSnapshotError("failed to write activity snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewSnapshotError("failed to close snapshot temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.NewSnapshotError("failed to move snapshot into place", err)
	}
	return nil
}

// LoadInto restores persisted activity into the tracker at start-up. A
// missing or unreadable snapshot is logged and the launcher carries on
// with whatever it has in memory.
func LoadInto(ctx context.Context, tracker *Tracker, store Store) {
	snapshot, err := store.Load(ctx)
	if err != nil {
		logger.Errorf("could not restore session activity, starting empty: %v", err)
		return
	}
	tracker.Merge(snapshot)
	if len(snapshot) > 0 {
		logger.Infof("restored activity for %d session(s)", len(snapshot))
	}
}

// RunWriter persists the tracker every interval until the context ends.
// A failed write is logged; the next tick retries.
func RunWriter(ctx context.Context, tracker *Tracker, store Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// One final write so a clean shutdown loses nothing.
			if err := store.Save(context.Background(), tracker.Snapshot()); err != nil {
				logger.Errorf("failed to write final activity snapshot: %v", err)
			}
			return
		case <-ticker.C:
			if err := store.Save(ctx, tracker.Snapshot()); err != nil {
				logger.Errorf("failed to write activity snapshot: %v", err)
			}
		}
	}
}
