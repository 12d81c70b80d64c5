package vcs

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

func TestClassifyOutput(t *testing.T) {
	execErr := fmt.Errorf("exit status 1")

	tests := []struct {
		name string
		out  string
		exp  error
	}{
		{
			name: "nothing to commit",
			out:  "On branch main\nnothing to commit, working tree clean\n",
			exp:  errors.NothingToCommitError{},
		},
		{
			name: "checkout conflict",
			out: "error: Your local changes to the following files would be overwritten by merge:\n" +
				"\tnotes/a.md\n\tnotes/b.md\n" +
				"Please commit your changes or stash them before you merge.\n",
			exp: errors.CheckoutConflictError{Paths: []string{"notes/a.md", "notes/b.md"}},
		},
		{
			name: "merge conflict",
			out: "Auto-merging notes/a.md\n" +
				"CONFLICT (content): Merge conflict in notes/a.md\n" +
				"CONFLICT (content): Merge conflict in b.md\n" +
				"Automatic merge failed; fix conflicts and then commit the result.\n",
			exp: errors.MergeConflictError{Paths: []string{"notes/a.md", "b.md"}},
		},
		{
			name: "remote ref not found",
			out:  "fatal: couldn't find remote ref main\n",
			exp:  errors.NotFoundError{What: "remote ref"},
		},
		{
			name: "bad revision",
			out:  "fatal: bad revision 'FETCH_HEAD'\n",
			exp:  errors.NotFoundError{What: "revision"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, errors.RootCause(classifyOutput(test.out, execErr)))
		})
	}
}

func TestClassifyOutputUnknown(t *testing.T) {
	execErr := fmt.Errorf("exit status 128")
	err := classifyOutput("fatal: something exotic\n", execErr)
	assert.Equal(t, execErr, errors.RootCause(err))
	assert.Contains(t, err.Error(), "something exotic")
}

func TestInjectToken(t *testing.T) {
	assert.Equal(t, "https://tok123@example.com/ws/repo.git",
		InjectToken("https://example.com/ws/repo.git", "tok123"))
	assert.Equal(t, "https://example.com/ws/repo.git",
		InjectToken("https://example.com/ws/repo.git", ""))
	assert.Equal(t, "git@example.com:ws/repo.git",
		InjectToken("git@example.com:ws/repo.git", "tok123"))
}

func TestUnderIgnored(t *testing.T) {
	ignored := []string{"spaces/alpha", "library"}
	assert.True(t, underIgnored("spaces/alpha/note.md", ignored))
	assert.True(t, underIgnored("spaces/alpha", ignored))
	assert.True(t, underIgnored("library/readme.md", ignored))
	assert.False(t, underIgnored("spaces/alphabet/note.md", ignored))
	assert.False(t, underIgnored("note.md", ignored))
	assert.False(t, underIgnored("note.md", []string{""}))
}

type fakeGit struct {
	calls   []string
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeGit) run(_ context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	return f.outputs[key], f.errs[key]
}

func TestStatusMatrixNative(t *testing.T) {
	fake := &fakeGit{
		outputs: map[string]string{
			"ls-files": "clean.md\nmodified.md\nspaces/alpha/nested.md\n",
			"status --porcelain": " M modified.md\n" +
				"?? fresh.md\n" +
				"UU conflicted.md\n" +
				"?? spaces/alpha/other.md\n",
		},
		errs: map[string]error{},
	}
	defer func(orig func(context.Context, string, ...string) (string, error)) {
		execCommand = orig
	}(execCommand)
	execCommand = fake.run

	adapter := NewNativeAdapter(nil)
	matrix, err := adapter.StatusMatrix("/scope", []string{"spaces/alpha"})
	assert.NoError(t, err)
	assert.Equal(t, StatusMatrix{
		"clean.md":      StateSynced,
		"modified.md":   StateModified,
		"fresh.md":      StateUntracked,
		"conflicted.md": StateConflict,
	}, matrix)
}

func TestCommitHealsGitlink(t *testing.T) {
	commitKey := "-c user.name=Tester -c user.email=t@example.com commit -m msg"
	fake := &fakeGit{
		outputs: map[string]string{
			"rev-parse HEAD": "abc123\n",
		},
		errs: map[string]error{
			commitKey: fmt.Errorf("exit status 1"),
		},
	}
	fake.outputs[commitKey] = "error: You have both nested/ and nested\n"

	defer func(orig func(context.Context, string, ...string) (string, error)) {
		execCommand = orig
	}(execCommand)
	execCommand = fake.run

	firstCommit := true
	origRun := fake.run
	execCommand = func(ctx context.Context, dir string, args ...string) (string, error) {
		key := strings.Join(args, " ")
		if key == commitKey && !firstCommit {
			return "", nil
		}
		if key == commitKey {
			firstCommit = false
		}
		return origRun(ctx, dir, args...)
	}

	adapter := NewNativeAdapter(nil)
	oid, err := adapter.Commit("/scope", "msg",
		Author{Name: "Tester", Email: "t@example.com"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "abc123", oid)

	assert.Contains(t, fake.calls, "rm --cached -r -- nested")
	assert.Contains(t, fake.calls, "add -- nested")
}

func TestCommitWithExplicitParents(t *testing.T) {
	commitTreeKey := "-c user.name=Tester -c user.email=t@example.com " +
		"commit-tree -p aaa111 -p bbb222 -m Merge remote changes tree333"
	fake := &fakeGit{
		outputs: map[string]string{
			"write-tree":  "tree333\n",
			commitTreeKey: "merged444\n",
		},
		errs: map[string]error{},
	}
	defer func(orig func(context.Context, string, ...string) (string, error)) {
		execCommand = orig
	}(execCommand)
	execCommand = fake.run

	adapter := NewNativeAdapter(nil)
	oid, err := adapter.Commit("/scope", "Merge remote changes",
		Author{Name: "Tester", Email: "t@example.com"}, []string{"aaa111", "bbb222"})
	assert.NoError(t, err)
	assert.Equal(t, "merged444", oid)
	assert.Contains(t, fake.calls, "update-ref HEAD merged444")
}

func TestNativeRemoteConfig(t *testing.T) {
	fake := &fakeGit{
		outputs: map[string]string{
			"config --get remote.origin.url": "https://example.com/ws/repo.git\n",
		},
		errs: map[string]error{},
	}
	defer func(orig func(context.Context, string, ...string) (string, error)) {
		execCommand = orig
	}(execCommand)
	execCommand = fake.run

	adapter := NewNativeAdapter(nil)
	assert.NoError(t, adapter.AddRemote("/scope", "origin", "https://example.com/ws/repo.git"))
	assert.Contains(t, fake.calls, "remote add origin https://example.com/ws/repo.git")

	url, err := adapter.GetConfig("/scope", "remote.origin.url")
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/ws/repo.git", url)
}
