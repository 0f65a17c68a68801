package config

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string, cb ReloadCallback) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatcherConfig{FilePath: path, Debounce: 100 * time.Millisecond}, cb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	var mu sync.Mutex
	var last *File
	var calls atomic.Int32
	startWatcher(t, path, func(cfg *File) error {
		mu.Lock()
		last = cfg
		mu.Unlock()
		calls.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`schema_version: v1
router:
  max_concurrency: 7
`), 0o600))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 7, last.Router.MaxConcurrency)
}

func TestWatcherDebounces(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	var calls atomic.Int32
	startWatcher(t, path, func(cfg *File) error {
		calls.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	var calls atomic.Int32
	startWatcher(t, path, func(cfg *File) error {
		calls.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("schema_version: v99\n"), 0o600))
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcherFollowsAtomicReplace(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	var calls atomic.Int32
	startWatcher(t, path, func(cfg *File) error {
		calls.Add(1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	cfg := Defaults()
	cfg.Router.MaxConcurrency = 3
	require.NoError(t, WriteFile(path, cfg))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	before := calls.Load()
	cfg.Router.MaxConcurrency = 5
	require.NoError(t, WriteFile(path, cfg))
	require.Eventually(t, func() bool { return calls.Load() > before }, 3*time.Second, 20*time.Millisecond)
}

func TestNewWatcherValidation(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{}, func(*File) error { return nil })
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{FilePath: "x.yaml"}, nil)
	assert.Error(t, err)

	w, err := NewWatcher(WatcherConfig{FilePath: "x.yaml"}, func(*File) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, w.config.Debounce)
}
