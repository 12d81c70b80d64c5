// Package vcs abstracts the version-control verbs needed by the sync engine
// over two interchangeable backends: a native adapter that shells out to the
// git binary, and an embedded adapter built on go-git that works without any
// subprocess or OS-level network permissions.
package vcs

import (
	"context"
	"strings"
	"time"
)

// FileState is the sync state of a single path within a scope.
type FileState string

const (
	// StateSynced means the path matches HEAD in both the index and the
	// working tree.
	StateSynced FileState = "synced"

	// StateModified means the path differs from HEAD in the index or the
	// working tree (including staged adds and deletes).
	StateModified FileState = "modified"

	// StateConflict means the path is unmerged.
	StateConflict FileState = "conflict"

	// StateUntracked means the path exists in the working tree but not in
	// the index.
	StateUntracked FileState = "untracked"
)

// historyWindow bounds how far AheadCount walks local history looking for
// the remote OID. Histories deeper than this under-report.
const historyWindow = 50

// StatusMatrix maps every tracked-or-untracked path under a scope root to its
// state. It is an immutable snapshot: consumers replace it wholesale on each
// refresh and never patch it in place.
type StatusMatrix map[string]FileState

// Author identifies the commit author resolved from the user's credentials.
type Author struct {
	Name  string
	Email string
	When  time.Time
}

// CloneOptions configures a shallow, single-branch clone.
type CloneOptions struct {
	URL    string
	Branch string
	Depth  int
	Token  string
}

// PullOptions configures a pull of the current branch.
type PullOptions struct {
	Remote string
	Branch string
	Token  string
}

// PushOptions configures a push of the current branch.
type PushOptions struct {
	Remote string
	Branch string
	Token  string
}

// FetchOptions configures a fetch, optionally shallow.
type FetchOptions struct {
	Remote string
	Branch string
	Depth  int
	Token  string
}

// Adapter is the capability set the engine needs from a version-control
// backend. All paths passed to and returned from an Adapter are relative to
// the scope root, using forward slashes.
type Adapter interface {
	Init(root, branch string) error
	Clone(ctx context.Context, root string, opts CloneOptions) error
	Add(root, path string) error
	Remove(root, path string) error
	Commit(root, message string, author Author, parents []string) (string, error)
	Pull(ctx context.Context, root string, opts PullOptions) error
	Push(ctx context.Context, root string, opts PushOptions) error
	Fetch(ctx context.Context, root string, opts FetchOptions) error
	AddRemote(root, name, url string) error
	CurrentBranch(root string) (string, error)
	ResolveRef(root, ref string) (string, error)
	GetConfig(root, key string) (string, error)
	DiscardChanges(root string, paths []string) error
	ResetHard(root, ref string) error
	ReadFileAt(root, ref, path string) (string, error)
	StatusMatrix(root string, ignoredSubpaths []string) (StatusMatrix, error)
	AheadCount(root, remoteRef string) (int, error)
	GC(root string) error
	IsNative() bool
}

// underIgnored reports whether path falls under any of the ignored subpaths.
// A root-scope scan must never report on files belonging to a nested scope.
func underIgnored(path string, ignoredSubpaths []string) bool {
	for _, prefix := range ignoredSubpaths {
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
