package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string, calls *atomic.Int32) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatcherConfig{
		Dir:          dir,
		Debounce:     50 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		OnChange:     func() { calls.Add(1) },
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "targets")
	_, err := NewWatcher(WatcherConfig{Dir: dir})
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestWatcher_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, &calls)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("url: http://a\n"), 0o644))
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, &calls)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".a.yaml.swp"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_StopCancelsPendingReload(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w, err := NewWatcher(WatcherConfig{Dir: dir, Debounce: time.Hour, OnChange: func() { calls.Add(1) }})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	w.trigger()
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stopping twice is a no-op")
	assert.Zero(t, calls.Load())
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	empty := fingerprint(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("x"), 0o644))
	withFile := fingerprint(dir)
	assert.NotEqual(t, empty, withFile)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))
	assert.Equal(t, withFile, fingerprint(dir))
}
