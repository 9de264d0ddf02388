package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	t.Setenv("VENUESCOUT_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "venuescout.yaml")

	cfg := validTestConfig()
	cfg.Dispatch.DefaultBudget = 100
	require.NoError(t, cfg.Save(path))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Replace atomically, the way editors save, so the watcher never reads
	// a half-written file.
	cfg.Dispatch.DefaultBudget = 250
	tmp := filepath.Join(dir, "venuescout.yaml.tmp")
	require.NoError(t, cfg.Save(tmp))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case got := <-reloaded:
		assert.Equal(t, 250, got.Dispatch.DefaultBudget)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload never arrived")
	}
}

func TestWatcher_RejectsInvalidReload(t *testing.T) {
	t.Setenv("VENUESCOUT_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "venuescout.yaml")
	require.NoError(t, validTestConfig().Save(path))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Invalid on reload: no credentials survive validation.
	require.NoError(t, os.WriteFile(path, []byte("credentials: []\n"), 0644))

	select {
	case <-reloaded:
		t.Fatal("invalid config must not reach onChange")
	case <-time.After(time.Second):
	}
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	// The watch directory does not exist, so Start fails before the loop
	// goroutine exists. Stop must still return instead of waiting on it.
	path := filepath.Join(t.TempDir(), "missing", "venuescout.yaml")
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venuescout.yaml")
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
