package vcs

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

// execCommand is swapped out in tests.
var execCommand = func(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// NativeAdapter issues version-control verbs as subprocess invocations
// against the external git binary, inheriting its credential handling, URL
// rewriting, and tree-conflict machinery.
type NativeAdapter struct {
	// fallback serves status calls when the binary becomes unavailable
	// mid-session. Degradation is per call, not a hard failover.
	fallback Adapter
}

// NewNativeAdapter returns a NativeAdapter that degrades status enumeration
// to fallback when the git binary disappears mid-session.
func NewNativeAdapter(fallback Adapter) *NativeAdapter {
	return &NativeAdapter{fallback: fallback}
}

func (a *NativeAdapter) IsNative() bool { return true }

func (a *NativeAdapter) run(dir string, args ...string) (string, error) {
	return a.runCtx(context.Background(), dir, args...)
}

func (a *NativeAdapter) runCtx(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := execCommand(ctx, dir, args...)
	if err != nil {
		return out, classifyOutput(out, err)
	}
	return out, nil
}

var (
	overwrittenRegexp = regexp.MustCompile(
		`(?s)Your local changes to the following files would be overwritten by[^:]*:\n(.*?)\n(?:Please|Aborting)`)
	conflictRegexp = regexp.MustCompile(`CONFLICT \([^)]*\): (?:Merge conflict in )?(\S+)`)
	bothDirRegexp  = regexp.MustCompile(`You have both ([^ ]+?)/? and \S+`)
)

// classifyOutput turns captured git output into the engine's typed errors.
// Anything unrecognized is propagated with the output attached.
func classifyOutput(out string, err error) error {
	switch {
	case strings.Contains(out, "nothing to commit"),
		strings.Contains(out, "no changes added to commit"):
		return errors.NothingToCommitError{}
	case overwrittenRegexp.MatchString(out):
		var paths []string
		for _, line := range strings.Split(overwrittenRegexp.FindStringSubmatch(out)[1], "\n") {
			if line = strings.TrimSpace(line); line != "" {
				paths = append(paths, line)
			}
		}
		return errors.CheckoutConflictError{Paths: paths}
	case strings.Contains(out, "CONFLICT"):
		var paths []string
		for _, m := range conflictRegexp.FindAllStringSubmatch(out, -1) {
			paths = append(paths, m[1])
		}
		return errors.MergeConflictError{Paths: paths}
	case strings.Contains(out, "couldn't find remote ref"),
		strings.Contains(out, "does not appear to be a git repository"),
		strings.Contains(out, "Repository not found"):
		return errors.NotFoundError{What: "remote ref"}
	case strings.Contains(out, "unknown revision or path"),
		strings.Contains(out, "bad revision"):
		return errors.NotFoundError{What: "revision"}
	default:
		return errors.WithContext(err, strings.TrimSpace(out))
	}
}

func (a *NativeAdapter) Init(root, branch string) error {
	if _, err := a.run(root, "init"); err != nil {
		return errors.WithContext(err, "init")
	}
	_, err := a.run(root, "checkout", "-b", branch)
	return err
}

func (a *NativeAdapter) Clone(ctx context.Context, root string, opts CloneOptions) error {
	args := []string{"clone", "--single-branch"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, InjectToken(opts.URL, opts.Token), ".")
	_, err := a.runCtx(ctx, root, args...)
	return err
}

func (a *NativeAdapter) Add(root, path string) error {
	// `git add -A` reconciles deletions as well, so the engine skips the
	// explicit remove pass for native scopes.
	_, err := a.run(root, "add", "-A", "--", path)
	return err
}

func (a *NativeAdapter) Remove(root, path string) error {
	_, err := a.run(root, "rm", "--ignore-unmatch", "--", path)
	return err
}

func (a *NativeAdapter) Commit(root, message string, author Author, parents []string) (string, error) {
	if len(parents) > 0 {
		return a.commitTree(root, message, author, parents)
	}

	args := []string{
		"-c", fmt.Sprintf("user.name=%s", author.Name),
		"-c", fmt.Sprintf("user.email=%s", author.Email),
		"commit", "-m", message,
	}
	_, err := a.run(root, args...)
	if err != nil {
		err = a.healGitlink(root, err, args)
	}
	if err != nil {
		return "", err
	}
	return a.ResolveRef(root, "HEAD")
}

// commitTree records a commit with explicit parents (merge resolution and
// interrupted-merge completion) via the plumbing commands, since porcelain
// `git commit` derives parents from HEAD and merge state on its own.
func (a *NativeAdapter) commitTree(root, message string, author Author, parents []string) (string, error) {
	tree, err := a.run(root, "write-tree")
	if err != nil {
		return "", errors.WithContext(err, "write tree")
	}

	args := []string{
		"-c", fmt.Sprintf("user.name=%s", author.Name),
		"-c", fmt.Sprintf("user.email=%s", author.Email),
		"commit-tree",
	}
	for _, parent := range parents {
		args = append(args, "-p", parent)
	}
	args = append(args, "-m", message, strings.TrimSpace(tree))
	oid, err := a.run(root, args...)
	if err != nil {
		return "", errors.WithContext(err, "commit tree")
	}

	oid = strings.TrimSpace(oid)
	if _, err := a.run(root, "update-ref", "HEAD", oid); err != nil {
		return "", errors.WithContext(err, "update ref")
	}
	return oid, nil
}

// healGitlink handles the case where a directory was indexed both as a plain
// tree and as a nested-repository link. It unstages the offending subtree,
// re-adds it as a link, and retries the commit exactly once.
func (a *NativeAdapter) healGitlink(root string, commitErr error, commitArgs []string) error {
	m := bothDirRegexp.FindStringSubmatch(commitErr.Error())
	if m == nil {
		return commitErr
	}
	dir := strings.TrimSuffix(m[1], "/")

	log.WithField("dir", dir).Warn("Directory indexed as both a tree and a gitlink. Re-indexing it as a link.")
	if _, err := a.run(root, "rm", "--cached", "-r", "--", dir); err != nil {
		return commitErr
	}
	if _, err := a.run(root, "add", "--", dir); err != nil {
		return commitErr
	}
	_, err := a.run(root, commitArgs...)
	return err
}

func (a *NativeAdapter) Pull(ctx context.Context, root string, opts PullOptions) error {
	_, err := a.runCtx(ctx, root, "pull", remoteName(opts.Remote), opts.Branch)
	return err
}

func (a *NativeAdapter) Push(ctx context.Context, root string, opts PushOptions) error {
	_, err := a.runCtx(ctx, root, "push", remoteName(opts.Remote), opts.Branch)
	return err
}

func (a *NativeAdapter) Fetch(ctx context.Context, root string, opts FetchOptions) error {
	args := []string{"fetch"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	args = append(args, remoteName(opts.Remote), opts.Branch)
	_, err := a.runCtx(ctx, root, args...)
	return err
}

func (a *NativeAdapter) AddRemote(root, name, url string) error {
	_, err := a.run(root, "remote", "add", name, url)
	return err
}

func (a *NativeAdapter) CurrentBranch(root string) (string, error) {
	out, err := a.run(root, "rev-parse", "--abbrev-ref", "HEAD")
	return strings.TrimSpace(out), err
}

func (a *NativeAdapter) ResolveRef(root, ref string) (string, error) {
	out, err := a.run(root, "rev-parse", ref)
	return strings.TrimSpace(out), err
}

func (a *NativeAdapter) GetConfig(root, key string) (string, error) {
	out, err := a.run(root, "config", "--get", key)
	return strings.TrimSpace(out), err
}

func (a *NativeAdapter) DiscardChanges(root string, paths []string) error {
	args := append([]string{"checkout", "--"}, paths...)
	_, err := a.run(root, args...)
	return err
}

func (a *NativeAdapter) ResetHard(root, ref string) error {
	_, err := a.run(root, "reset", "--hard", ref)
	return err
}

func (a *NativeAdapter) ReadFileAt(root, ref, path string) (string, error) {
	return a.run(root, "show", fmt.Sprintf("%s:%s", ref, path))
}

func (a *NativeAdapter) StatusMatrix(root string, ignoredSubpaths []string) (StatusMatrix, error) {
	tracked, err := a.run(root, "ls-files")
	if err != nil {
		if isBinaryUnavailable(err) && a.fallback != nil {
			log.Warn("git binary became unavailable; serving status from the embedded adapter")
			return a.fallback.StatusMatrix(root, ignoredSubpaths)
		}
		return nil, errors.WithContext(err, "list tracked files")
	}

	matrix := StatusMatrix{}
	for _, path := range strings.Split(tracked, "\n") {
		if path = strings.TrimSpace(path); path == "" || underIgnored(path, ignoredSubpaths) {
			continue
		}
		matrix[path] = StateSynced
	}

	out, err := a.run(root, "status", "--porcelain")
	if err != nil {
		return nil, errors.WithContext(err, "status")
	}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code, path := line[:2], strings.TrimSpace(line[3:])
		// Renames are reported as `old -> new`; the new path is the one
		// that exists on disk.
		if idx := strings.Index(path, " -> "); idx != -1 {
			path = path[idx+4:]
		}
		path = strings.Trim(path, `"`)
		if underIgnored(path, ignoredSubpaths) {
			continue
		}
		switch {
		case code == "??":
			matrix[path] = StateUntracked
		case strings.ContainsAny(code, "U") || code == "AA" || code == "DD":
			matrix[path] = StateConflict
		default:
			matrix[path] = StateModified
		}
	}
	return matrix, nil
}

// AheadCount walks local first-parent history looking for the remote OID
// within a fixed depth window. It silently under-reports when the history
// exceeds that window; this is a documented approximation, not a guarantee.
func (a *NativeAdapter) AheadCount(root, remoteRef string) (int, error) {
	remoteOID, err := a.ResolveRef(root, remoteRef)
	if err != nil {
		return 0, err
	}
	out, err := a.run(root, "rev-list", "--first-parent",
		fmt.Sprintf("--max-count=%d", historyWindow), "HEAD")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, oid := range strings.Split(strings.TrimSpace(out), "\n") {
		if oid == remoteOID {
			return count, nil
		}
		count++
	}
	return count, nil
}

func (a *NativeAdapter) GC(root string) error {
	_, err := a.run(root, "gc", "--auto")
	return err
}

func isBinaryUnavailable(err error) bool {
	rootCause := errors.RootCause(err)
	if execErr, ok := rootCause.(*exec.Error); ok {
		return execErr.Err == exec.ErrNotFound
	}
	return false
}

func remoteName(remote string) string {
	if remote == "" {
		return "origin"
	}
	return remote
}

// InjectToken places a bearer token into the userinfo component of a remote
// URL. Non-HTTP URLs and empty tokens pass through unchanged.
func InjectToken(remote, token string) string {
	if token == "" {
		return remote
	}
	u, err := url.Parse(remote)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return remote
	}
	u.User = url.User(token)
	return u.String()
}
