package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, opts ...Option) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := New(dir, append([]Option{WithDebounce(20 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, dir
}

func waitFile(t *testing.T, w *Watcher) string {
	t.Helper()
	select {
	case path := <-w.Files():
		return path
	case <-time.After(3 * time.Second):
		t.Fatal("no file reported")
		return ""
	}
}

func assertQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case path := <-w.Files():
		t.Fatalf("unexpected file %s", path)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestNew(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "absent"))
		assert.Error(t, err)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "req.md")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := New(path)
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestWatcher_Matches(t *testing.T) {
	w, err := New(t.TempDir(), WithExtensions("md", ".RST", " "))
	require.NoError(t, err)
	defer w.Stop()

	tests := map[string]bool{
		"/in/login.md":     true,
		"/in/LOGIN.MD":     true,
		"/in/spec.rst":     true,
		"/in/notes.txt":    false,
		"/in/.draft.md":    false,
		"/in/no-extension": false,
	}
	for path, want := range tests {
		assert.Equal(t, want, w.Matches(path), path)
	}
}

func TestWatcher_ReportsSettledFiles(t *testing.T) {
	w, dir := startWatcher(t)

	path := filepath.Join(dir, "login.md")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.WriteString("User can login.\n")
	require.NoError(t, err)
	_, err = f.WriteString("User can logout.\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, path, waitFile(t, w))
	assertQuiet(t, w)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	w, dir := startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "diagram.png"), []byte{0x89}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("x"), 0o600))
	assertQuiet(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "search.txt"), []byte("User can search."), 0o600))
	assert.Equal(t, filepath.Join(dir, "search.txt"), waitFile(t, w))
}

func TestWatcher_StopsWithContext(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, WithDebounce(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.md"), []byte("x"), 0o600))
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case <-w.stop:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.NotPanics(t, w.Stop, "Stop is idempotent")
}
