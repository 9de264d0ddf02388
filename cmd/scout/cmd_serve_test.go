package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"venuescout/internal/config"
)

// Reloads land on the watcher goroutine while scheduled runs read the live
// config, so the test hammers the read side during a reload and relies on
// the race detector to catch unsynchronized publication.
func TestServe_ConfigHotReload(t *testing.T) {
	t.Setenv("VENUESCOUT_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "venuescout.yaml")

	cfg := config.DefaultConfig()
	cfg.Credentials = []config.CredentialConfig{
		{ID: "primary", APIKey: "key", EngineID: "engine", DailyLimit: 100},
	}
	cfg.Dispatch.DefaultBudget = 100
	require.NoError(t, cfg.Save(path))

	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })

	var live atomic.Pointer[config.Config]
	live.Store(cfg)
	budgetFor := func() int { return live.Load().Dispatch.DefaultBudget }

	w, err := watchLiveConfig(&live)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				_ = budgetFor()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	// Replace atomically, the way editors save.
	next := config.DefaultConfig()
	next.Credentials = cfg.Credentials
	next.Dispatch.DefaultBudget = 250
	tmp := filepath.Join(dir, "venuescout.yaml.tmp")
	require.NoError(t, next.Save(tmp))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return budgetFor() == 250 },
		5*time.Second, 10*time.Millisecond)

	close(stop)
	<-done
}
