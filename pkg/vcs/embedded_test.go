package vcs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

func newTestRepo(t *testing.T) (*EmbeddedAdapter, string) {
	root, err := ioutil.TempDir("", "afsync-vcs-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	adapter := NewEmbeddedAdapter(EmbeddedOptions{})
	require.NoError(t, adapter.Init(root, "main"))
	return adapter, root
}

func writeFile(t *testing.T, root, path, contents string) {
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, ioutil.WriteFile(full, []byte(contents), 0644))
}

var testAuthor = Author{Name: "Tester", Email: "tester@example.com"}

func TestEmbeddedCommitAndStatus(t *testing.T) {
	adapter, root := newTestRepo(t)

	writeFile(t, root, "note.md", "# hello\n")
	writeFile(t, root, "spaces/alpha/nested.md", "nested\n")
	require.NoError(t, adapter.Add(root, "."))

	oid, err := adapter.Commit(root, "initial", testAuthor, nil)
	require.NoError(t, err)
	assert.Len(t, oid, 40)

	branch, err := adapter.CurrentBranch(root)
	assert.NoError(t, err)
	assert.Equal(t, "main", branch)

	// A second commit with a clean tree is absorbed as NothingToCommit.
	_, err = adapter.Commit(root, "empty", testAuthor, nil)
	assert.True(t, errors.IsNothingToCommit(err))

	writeFile(t, root, "note.md", "# hello again\n")
	writeFile(t, root, "fresh.md", "new\n")

	matrix, err := adapter.StatusMatrix(root, []string{"spaces/alpha"})
	require.NoError(t, err)
	assert.Equal(t, StatusMatrix{
		"note.md":  StateModified,
		"fresh.md": StateUntracked,
	}, matrix)
}

func TestEmbeddedDiscardChanges(t *testing.T) {
	adapter, root := newTestRepo(t)

	writeFile(t, root, "note.md", "original\n")
	require.NoError(t, adapter.Add(root, "."))
	_, err := adapter.Commit(root, "initial", testAuthor, nil)
	require.NoError(t, err)

	writeFile(t, root, "note.md", "scribbled over\n")
	require.NoError(t, adapter.DiscardChanges(root, []string{"note.md"}))

	contents, err := ioutil.ReadFile(filepath.Join(root, "note.md"))
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(contents))
}

func TestEmbeddedReadFileAt(t *testing.T) {
	adapter, root := newTestRepo(t)

	writeFile(t, root, "note.md", "v1\n")
	require.NoError(t, adapter.Add(root, "."))
	_, err := adapter.Commit(root, "v1", testAuthor, nil)
	require.NoError(t, err)

	contents, err := adapter.ReadFileAt(root, "HEAD", "note.md")
	assert.NoError(t, err)
	assert.Equal(t, "v1\n", contents)

	_, err = adapter.ReadFileAt(root, "HEAD", "missing.md")
	assert.True(t, errors.IsNotFound(err))
}

func TestEmbeddedAheadCount(t *testing.T) {
	adapter, root := newTestRepo(t)

	writeFile(t, root, "note.md", "v1\n")
	require.NoError(t, adapter.Add(root, "."))
	base, err := adapter.Commit(root, "v1", testAuthor, nil)
	require.NoError(t, err)

	writeFile(t, root, "note.md", "v2\n")
	require.NoError(t, adapter.Add(root, "."))
	_, err = adapter.Commit(root, "v2", testAuthor, nil)
	require.NoError(t, err)

	writeFile(t, root, "note.md", "v3\n")
	require.NoError(t, adapter.Add(root, "."))
	_, err = adapter.Commit(root, "v3", testAuthor, nil)
	require.NoError(t, err)

	count, err := adapter.AheadCount(root, base)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEmbeddedCommitWithParents(t *testing.T) {
	adapter, root := newTestRepo(t)

	writeFile(t, root, "note.md", "base\n")
	require.NoError(t, adapter.Add(root, "."))
	first, err := adapter.Commit(root, "base", testAuthor, nil)
	require.NoError(t, err)

	writeFile(t, root, "note.md", "merged\n")
	require.NoError(t, adapter.Add(root, "."))
	second, err := adapter.Commit(root, "second", testAuthor, nil)
	require.NoError(t, err)

	writeFile(t, root, "note.md", "resolved\n")
	require.NoError(t, adapter.Add(root, "."))
	mergeOID, err := adapter.Commit(root, "merge", testAuthor, []string{second, first})
	require.NoError(t, err)

	// The resolved-against ref must appear as a second parent so the
	// history records a merge rather than a rewritten line.
	firstParent, err := adapter.ResolveRef(root, mergeOID+"^1")
	assert.NoError(t, err)
	assert.Equal(t, second, firstParent)
	secondParent, err := adapter.ResolveRef(root, mergeOID+"^2")
	assert.NoError(t, err)
	assert.Equal(t, first, secondParent)
}

func TestEmbeddedDivergedPullReportsPaths(t *testing.T) {
	adapter, root := newTestRepo(t)

	writeFile(t, root, "note.md", "base\n")
	writeFile(t, root, "other.md", "untouched\n")
	require.NoError(t, adapter.Add(root, "."))
	base, err := adapter.Commit(root, "base", testAuthor, nil)
	require.NoError(t, err)

	// Record the remote side as a commit off the base, then point the
	// remote-tracking ref at it the way a fetch would.
	writeFile(t, root, "note.md", "remote edit\n")
	writeFile(t, root, "remote-only.md", "remote\n")
	require.NoError(t, adapter.Add(root, "."))
	remote, err := adapter.Commit(root, "remote", testAuthor, []string{base})
	require.NoError(t, err)

	repo, err := git.PlainOpen(root)
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(plumbing.NewReferenceFromStrings(
		"refs/remotes/origin/main", remote)))

	// Rewind and build the diverging local side.
	require.NoError(t, adapter.ResetHard(root, base))
	writeFile(t, root, "note.md", "local edit\n")
	writeFile(t, root, "local-only.md", "local\n")
	require.NoError(t, adapter.Add(root, "."))
	_, err = adapter.Commit(root, "local", testAuthor, nil)
	require.NoError(t, err)

	// A diverged pull must carry the files changed on both sides, not an
	// empty list: go-git writes no conflict markers, so nothing downstream
	// can recover the detail later.
	err = adapter.classify(root, "main", git.ErrNonFastForwardUpdate)
	conflictErr, ok := errors.RootCause(err).(errors.MergeConflictError)
	require.True(t, ok)
	assert.Equal(t, []string{"note.md"}, conflictErr.Paths)
}

func TestEmbeddedRemoteConfig(t *testing.T) {
	adapter, root := newTestRepo(t)

	require.NoError(t, adapter.AddRemote(root, "", "https://example.com/ws/repo.git"))
	// Re-adding the same remote is idempotent.
	require.NoError(t, adapter.AddRemote(root, "origin", "https://example.com/ws/repo.git"))

	url, err := adapter.GetConfig(root, "remote.origin.url")
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/ws/repo.git", url)

	_, err = adapter.GetConfig(root, "remote.upstream.url")
	assert.True(t, errors.IsNotFound(err))
}
