package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitTrigger(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Triggers():
	case <-time.After(5 * time.Second):
		t.Fatal("no trigger arrived")
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	w, err := newWatcher([]string{dir}, 100*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	// An editor save or checkout touches many files at once; the burst
	// must collapse into a single trigger.
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, fmt.Sprintf("f%d.proto", i))
		require.NoError(t, os.WriteFile(path, []byte("syntax = \"proto3\";\n"), 0644))
	}

	waitTrigger(t, w)

	select {
	case <-w.Triggers():
		t.Fatal("burst produced more than one trigger")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherFiresAgainAfterQuiet(t *testing.T) {
	dir := t.TempDir()
	w, err := newWatcher([]string{dir}, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.proto"), []byte("x"), 0644))
	waitTrigger(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.proto"), []byte("y"), 0644))
	waitTrigger(t, w)
}

func TestWatcherAddsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := newWatcher([]string{dir}, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0755))
	// By the time the mkdir's debounced trigger arrives, the new
	// directory is already on the watch list.
	waitTrigger(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.proto"), []byte("z"), 0644))
	waitTrigger(t, w)
}

func TestWatcherSkipsMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	w, err := newWatcher([]string{missing}, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
