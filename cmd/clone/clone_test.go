package clone

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveID(t *testing.T) {
	tests := []struct {
		remote string
		exp    string
	}{
		{"https://github.com/acme/notes.git", "notes"},
		{"https://github.com/acme/notes", "notes"},
		{"git@github.com:acme/notes.git", "notes"},
		{"https://git.example.com/deep/group/repo.git/", "repo"},
	}
	for _, test := range tests {
		assert.Equal(t, test.exp, deriveID(test.remote), test.remote)
	}
}

func TestSandboxedWorktreeAppliesWritePolicy(t *testing.T) {
	root, err := ioutil.TempDir("", "afsync-clone-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	worktree := sandboxedWorktree(root)

	f, err := worktree.Create("evil.exe")
	require.NoError(t, err)
	_, err = f.Write([]byte("MZ\x90\x00"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = os.Stat(filepath.Join(root, "evil.exe"))
	assert.True(t, os.IsNotExist(err), "disallowed file type must never materialize")

	f, err = worktree.Create("note.md")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello <script>alert(1)</script> world\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	contents, err := ioutil.ReadFile(filepath.Join(root, "note.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "<script>")
}
