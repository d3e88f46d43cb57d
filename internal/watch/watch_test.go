package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// runWatcher starts w and returns a stop function that waits for Run.
func runWatcher(t *testing.T, w *Watcher) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
			return nil
		}
	}
}

func waitFor(t *testing.T, builds <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{}, func(context.Context) error { return nil })
	assert.Error(t, err)
	_, err = New(Options{Dirs: []string{t.TempDir()}}, nil)
	assert.Error(t, err)

	w, err := New(Options{Dirs: []string{t.TempDir()}}, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, w.opts.Debounce)
}

func TestRun_BuildsThenRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	builds := make(chan struct{}, 10)
	w, err := New(Options{
		Dirs:       []string{dir},
		Extensions: []string{".js"},
		Debounce:   50 * time.Millisecond,
	}, func(context.Context) error {
		builds <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	stop := runWatcher(t, w)
	waitFor(t, builds, "initial build")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Page1.js"), []byte("export default 1"), 0644))
	waitFor(t, builds, "rebuild")

	require.NoError(t, stop())
	s := w.Stats()
	assert.GreaterOrEqual(t, s.Builds, 2)
	assert.GreaterOrEqual(t, s.Events, 1)
	assert.Equal(t, filepath.Join(dir, "Page1.js"), s.LastEventPath)
}

func TestRun_IgnoresFilteredEvents(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "dist")
	require.NoError(t, os.Mkdir(out, 0755))

	var count atomic.Int32
	first := make(chan struct{}, 1)
	w, err := New(Options{
		Dirs:       []string{dir},
		Ignore:     []string{out},
		Extensions: []string{".js"},
		Debounce:   20 * time.Millisecond,
	}, func(context.Context) error {
		if count.Add(1) == 1 {
			first <- struct{}{}
		}
		return nil
	})
	require.NoError(t, err)

	stop := runWatcher(t, w)
	waitFor(t, first, "initial build")

	require.NoError(t, os.WriteFile(filepath.Join(out, "main.js"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".Page1.js.swp"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, stop())
	assert.Equal(t, int32(1), count.Load())
	assert.Zero(t, w.Stats().Events)
}

func TestRun_KeepsWatchingAfterFailedBuild(t *testing.T) {
	dir := t.TempDir()
	builds := make(chan struct{}, 10)
	var n atomic.Int32
	w, err := New(Options{Dirs: []string{dir}, Debounce: 20 * time.Millisecond}, func(context.Context) error {
		defer func() { builds <- struct{}{} }()
		if n.Add(1) == 1 {
			return errors.New("syntax error")
		}
		return nil
	})
	require.NoError(t, err)

	stop := runWatcher(t, w)
	waitFor(t, builds, "failed build")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixed.js"), []byte("x"), 0644))
	waitFor(t, builds, "rebuild")
	require.NoError(t, stop())

	s := w.Stats()
	assert.Equal(t, 1, s.Failures)
	assert.GreaterOrEqual(t, s.Builds, 2)
}

func TestRun_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	builds := make(chan struct{}, 10)
	w, err := New(Options{Dirs: []string{dir}, Extensions: []string{".js"}, Debounce: 20 * time.Millisecond},
		func(context.Context) error {
			builds <- struct{}{}
			return nil
		})
	require.NoError(t, err)

	stop := runWatcher(t, w)
	waitFor(t, builds, "initial build")

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0755))
	waitFor(t, builds, "rebuild for new directory")

	require.NoError(t, os.WriteFile(filepath.Join(sub, "Deep.js"), []byte("x"), 0644))
	waitFor(t, builds, "rebuild for file in new directory")
	require.NoError(t, stop())
}

func TestRun_MissingDirectory(t *testing.T) {
	w, err := New(Options{Dirs: []string{filepath.Join(t.TempDir(), "missing")}}, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background()))
}
