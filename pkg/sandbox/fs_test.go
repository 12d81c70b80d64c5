package sandbox

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/memfs"
)

func writeThroughOverlay(t *testing.T, fs billy.Filesystem, path, contents string) {
	f, err := fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readInner(t *testing.T, inner billy.Filesystem, path string) string {
	f, err := inner.Open(path)
	require.NoError(t, err)
	defer f.Close()
	contents, err := ioutil.ReadAll(f)
	require.NoError(t, err)
	return string(contents)
}

func assertAbsent(t *testing.T, inner billy.Filesystem, path string) {
	_, err := inner.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %q to not exist", path)
}

func TestQuarantineRedirect(t *testing.T) {
	inner := memfs.New()
	overlay := New(inner)

	writeThroughOverlay(t, overlay, "secrets/.afconfig/x.json", `{"hotkeys":[]}`)

	assertAbsent(t, inner, "secrets/.afconfig/x.json")
	assert.Equal(t, `{"hotkeys":[]}`,
		readInner(t, inner, ".quarantine/secrets/.afconfig/x.json"))
}

func TestGitMetadataExempt(t *testing.T) {
	inner := memfs.New()
	overlay := New(inner)

	writeThroughOverlay(t, overlay, ".git/config", "[core]\n")
	assert.Equal(t, "[core]\n", readInner(t, inner, ".git/config"))
}

func TestWhitelistDropsDisallowed(t *testing.T) {
	inner := memfs.New()
	overlay := New(inner)

	writeThroughOverlay(t, overlay, "image.exe", "MZ\x90\x00")
	assertAbsent(t, inner, "image.exe")

	// Reserved basenames are allowed even without a whitelisted extension.
	writeThroughOverlay(t, overlay, "LICENSE", "MIT\n")
	assert.Equal(t, "MIT\n", readInner(t, inner, "LICENSE"))
}

func TestSanitizeOnWrite(t *testing.T) {
	inner := memfs.New()
	overlay := New(inner)

	note := "# Title\n\n```dataviewjs\ndv.pages()\n```\n\nplain text\n"
	writeThroughOverlay(t, overlay, "note.md", note)

	exp := "# Title\n\n```disabled-dataviewjs\ndv.pages()\n```\n\nplain text\n"
	assert.Equal(t, exp, readInner(t, inner, "note.md"))
}

func TestReadsPassThrough(t *testing.T) {
	inner := memfs.New()
	f, err := inner.Create("raw.md")
	require.NoError(t, err)
	_, err = f.Write([]byte("<script>alert(1)</script>"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	overlay := New(inner)
	assert.Equal(t, "<script>alert(1)</script>", readInner(t, overlay, "raw.md"))
}

func TestRenamePolicy(t *testing.T) {
	inner := memfs.New()
	overlay := New(inner)

	writeThroughOverlay(t, overlay, "note.md", "contents\n")

	// Renaming into a disallowed destination is dropped; the source stays.
	require.NoError(t, overlay.Rename("note.md", "note.exe"))
	assert.Equal(t, "contents\n", readInner(t, inner, "note.md"))
	assertAbsent(t, inner, "note.exe")

	require.NoError(t, overlay.Rename("note.md", ".afconfig/note.md"))
	assert.Equal(t, "contents\n", readInner(t, inner, ".quarantine/.afconfig/note.md"))
}

func TestChrootKeepsPolicyAnchored(t *testing.T) {
	inner := memfs.New()
	require.NoError(t, inner.MkdirAll("sub", 0755))
	overlay := New(inner)

	sub, err := overlay.Chroot("sub")
	require.NoError(t, err)

	writeThroughOverlay(t, sub, ".afconfig/app.json", "{}")
	assertAbsent(t, inner, "sub/.afconfig/app.json")

	// The mirror is anchored at the workspace root, preserving the original
	// relative path exactly once.
	assertAbsent(t, inner, "sub/.quarantine/sub/.afconfig/app.json")
	assert.Equal(t, "{}", readInner(t, inner, ".quarantine/sub/.afconfig/app.json"))
}

func TestSanitizeRules(t *testing.T) {
	tests := []struct {
		name string
		in   string
		exp  string
	}{
		{
			name: "dataviewjs fence",
			in:   "```dataviewjs\ncode\n```\n",
			exp:  "```disabled-dataviewjs\ncode\n```\n",
		},
		{
			name: "templater fence",
			in:   "```templater\ncode\n```\n",
			exp:  "```disabled-templater\ncode\n```\n",
		},
		{
			name: "indented fence",
			in:   "  ```dataviewjs\ncode\n  ```\n",
			exp:  "  ```disabled-dataviewjs\ncode\n  ```\n",
		},
		{
			name: "script element",
			in:   "before\n<script type=\"text/javascript\">alert(1)</script>\nafter\n",
			exp:  "before\n<!-- script removed -->\nafter\n",
		},
		{
			name: "dangling script tag",
			in:   "x <SCRIPT src=\"evil.js\"> y",
			exp:  "x <!-- script removed --> y",
		},
		{
			name: "plain fences untouched",
			in:   "```python\nprint(1)\n```\n",
			exp:  "```python\nprint(1)\n```\n",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, string(Sanitize([]byte(test.in))))
		})
	}
}
