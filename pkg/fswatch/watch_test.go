package fswatch

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchedDir(t *testing.T) (string, *Watcher) {
	t.Helper()
	root, err := ioutil.TempDir("", "afsync-watch")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0755))

	w, err := Watch(root)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return root, w
}

// waitFor drains the watcher until it reports relPath, failing on timeout.
// Platforms differ on which extra events (chmod, parent-dir writes) accompany
// a change, so unrelated paths are skipped rather than asserted on.
func waitFor(t *testing.T, w *Watcher, relPath string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-w.Paths:
			if got == relPath {
				return
			}
		case <-deadline:
			t.Fatalf("never observed a change at %q", relPath)
		}
	}
}

func TestWatchReportsRelativePaths(t *testing.T) {
	root, w := newWatchedDir(t)

	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "top.md"), []byte("hi"), 0644))
	waitFor(t, w, "top.md")

	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "notes", "a.md"), []byte("hi"), 0644))
	waitFor(t, w, "notes/a.md")
}

func TestWatchPicksUpNewDirectories(t *testing.T) {
	root, w := newWatchedDir(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "fresh"), 0755))
	waitFor(t, w, "fresh")

	// The new directory's own contents must be watched too. Give the create
	// event a moment to register the watch before writing into it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "fresh", "b.md"), []byte("hi"), 0644))
	waitFor(t, w, "fresh/b.md")
}

func TestWatchIgnoresMetadataDirs(t *testing.T) {
	root, w := newWatchedDir(t)

	require.NoError(t, ioutil.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "real.md"), []byte("hi"), 0644))

	// Only the real change surfaces; .git churn is filtered out.
	waitFor(t, w, "real.md")
	for {
		select {
		case got := <-w.Paths:
			assert.NotContains(t, got, ".git")
		default:
			return
		}
	}
}
