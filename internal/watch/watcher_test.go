package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string, exts []string) <-chan []string {
	t.Helper()

	triggers := make(chan []string, 16)

	w, err := New(Options{
		Dir:        dir,
		Extensions: exts,
		Debounce:   50 * time.Millisecond,
		OnChange: func(ctx context.Context, paths []string) {
			triggers <- paths
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// Give the watch registrations a moment to land
	time.Sleep(100 * time.Millisecond)

	return triggers
}

func waitTrigger(t *testing.T, triggers <-chan []string) []string {
	t.Helper()

	select {
	case paths := <-triggers:
		return paths
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a change trigger")
		return nil
	}
}

func assertNoTrigger(t *testing.T, triggers <-chan []string) {
	t.Helper()

	select {
	case paths := <-triggers:
		t.Fatalf("unexpected trigger: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "user.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: user\n"), 0o644))

	triggers := startWatcher(t, dir, []string{".yaml"})

	require.NoError(t, os.WriteFile(file, []byte("name: user\nversion: 2\n"), 0o644))

	paths := waitTrigger(t, triggers)
	assert.Contains(t, paths, file)
}

func TestWatcherCollapsesBursts(t *testing.T) {
	dir := t.TempDir()
	triggers := startWatcher(t, dir, []string{".yaml"})

	for _, name := range []string{"a.yaml", "b.yaml", "c.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x: 1\n"), 0o644))
	}

	paths := waitTrigger(t, triggers)
	assert.Len(t, paths, 3, "one debounced trigger should carry the whole burst")
	assert.IsIncreasing(t, paths, "paths should come back sorted")

	assertNoTrigger(t, triggers)
}

func TestWatcherFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	triggers := startWatcher(t, dir, []string{".yaml", ".json"})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o644))
	assertNoTrigger(t, triggers)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.json"), []byte("{}"), 0o644))
	paths := waitTrigger(t, triggers)
	assert.Contains(t, paths, filepath.Join(dir, "user.json"))
}

func TestWatcherSeesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	triggers := startWatcher(t, dir, []string{".yaml"})

	sub := filepath.Join(dir, "orders")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Let the new directory join the watch before writing into it
	time.Sleep(200 * time.Millisecond)

	file := filepath.Join(sub, "order.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: order\n"), 0o644))

	paths := waitTrigger(t, triggers)
	assert.Contains(t, paths, file)
}

func TestWatcherIgnoresHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".git")
	require.NoError(t, os.Mkdir(hidden, 0o755))

	triggers := startWatcher(t, dir, []string{".yaml"})

	require.NoError(t, os.WriteFile(filepath.Join(hidden, "state.yaml"), []byte("x: 1\n"), 0o644))
	assertNoTrigger(t, triggers)
}

func TestNewRequiresCallback(t *testing.T) {
	_, err := New(Options{Dir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OnChange")
}
