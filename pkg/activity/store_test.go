// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.json")
	store := NewFileStore(path)
	ctx := context.Background()

	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(42 * time.Second)

	require.NoError(t, store.Save(ctx, map[string]time.Time{"u1": t1, "u2": t2}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded["u1"].Equal(t1))
	assert.True(t, loaded["u2"].Equal(t2))
	assert.Len(t, loaded, 2)
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "never-written.json"))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStoreLoadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestFileStoreSaveCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "activity.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), map[string]time.Time{}))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "activity.json"))
	require.NoError(t, store.Save(context.Background(), map[string]time.Time{"u1": time.Now()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "activity.json", entries[0].Name())
}

// Restart merge: a snapshot written by one process generation is visible to
// the next through LoadInto.
func TestLoadIntoMergesSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.json")
	store := NewFileStore(path)
	ctx := context.Background()

	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	require.NoError(t, store.Save(ctx, map[string]time.Time{"u1": t1, "u2": t2}))

	tracker := NewTracker()
	LoadInto(ctx, tracker, store)

	ts, ok := tracker.Get("u1")
	require.True(t, ok)
	assert.True(t, ts.Equal(t1))
	ts, ok = tracker.Get("u2")
	require.True(t, ok)
	assert.True(t, ts.Equal(t2))
}

func TestLoadIntoToleratesBrokenStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.json")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o600))

	tracker := NewTracker()
	LoadInto(context.Background(), tracker, NewFileStore(path))
	assert.Equal(t, 0, tracker.Len())
}

func TestRunWriterPersistsOnTickAndShutdown(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.json")
	store := NewFileStore(path)
	tracker := NewTracker()
	tracker.Touch("abc12345")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunWriter(ctx, tracker, store, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		loaded, err := store.Load(context.Background())
		return err == nil && len(loaded) == 1
	}, time.Second, 5*time.Millisecond)

	tracker.Touch("u2")
	cancel()
	<-done

	// The shutdown write captured the latest state.
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}
