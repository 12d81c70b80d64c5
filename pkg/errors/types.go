package errors

import (
	"fmt"
	"strings"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// NothingToCommitError is returned by Commit when the index matches HEAD.
// The background sync cycle absorbs it.
type NothingToCommitError struct{}

func (err NothingToCommitError) Error() string {
	return "nothing to commit, working tree clean"
}

// CheckoutConflictError is returned when local uncommitted modifications
// block an incoming checkout. Paths lists the blocking files so that the
// caller can discard exactly those changes and retry.
type CheckoutConflictError struct {
	Paths []string
}

func (err CheckoutConflictError) Error() string {
	return fmt.Sprintf("local changes would be overwritten by checkout: %s",
		strings.Join(err.Paths, ", "))
}

// MergeConflictError is returned when concurrent edits to the same regions
// prevent a merge from completing. Paths may be empty if the underlying
// implementation couldn't enumerate the conflicting files; callers fall back
// to scanning the status matrix.
type MergeConflictError struct {
	Paths []string
}

func (err MergeConflictError) Error() string {
	if len(err.Paths) == 0 {
		return "merge conflict"
	}
	return fmt.Sprintf("merge conflict in %s", strings.Join(err.Paths, ", "))
}

// NotFoundError represents a missing ref or remote. It's absorbed during the
// first-ever sync, when the remote has no history yet.
type NotFoundError struct {
	What string
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", err.What)
}

// MissingTokenError is returned when no authentication token is configured.
// It aborts the current operation only, and is surfaced to the user as a
// recoverable condition rather than a crash.
type MissingTokenError struct{}

func (err MissingTokenError) Error() string {
	return "no authentication token configured"
}

// IsNothingToCommit reports whether err's root cause is a NothingToCommitError.
func IsNothingToCommit(err error) bool {
	_, ok := RootCause(err).(NothingToCommitError)
	return ok
}

// IsNotFound reports whether err's root cause is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := RootCause(err).(NotFoundError)
	return ok
}
