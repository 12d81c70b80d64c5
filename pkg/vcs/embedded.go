package vcs

import (
	"context"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"
	git "gopkg.in/src-d/go-git.v4"
	gitconfig "gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/cache"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/client"
	githttp "gopkg.in/src-d/go-git.v4/plumbing/transport/http"
	"gopkg.in/src-d/go-git.v4/storage/filesystem"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

// WorktreeFS builds the filesystem the adapter mounts a scope's working tree
// on. The engine passes the security-sandboxed overlay here so that every
// write performed during checkout and pull goes through the write policy.
type WorktreeFS func(root string) billy.Filesystem

// EmbeddedOptions configures an EmbeddedAdapter.
type EmbeddedOptions struct {
	// Worktree builds the working-tree filesystem for a scope root.
	// Defaults to the raw OS filesystem.
	Worktree WorktreeFS

	// HTTPClient optionally replaces the transport used for remote I/O, so
	// the adapter works in environments without direct network access.
	HTTPClient *http.Client
}

// EmbeddedAdapter runs every verb in-process on go-git. It never spawns a
// subprocess, which makes it the only viable variant on sandboxed platforms.
type EmbeddedAdapter struct {
	worktree WorktreeFS
	worker   *statusWorker
}

// NewEmbeddedAdapter returns an EmbeddedAdapter.
func NewEmbeddedAdapter(opts EmbeddedOptions) *EmbeddedAdapter {
	if opts.Worktree == nil {
		opts.Worktree = func(root string) billy.Filesystem {
			return osfs.New(root)
		}
	}
	if opts.HTTPClient != nil {
		customClient := githttp.NewClient(opts.HTTPClient)
		client.InstallProtocol("http", customClient)
		client.InstallProtocol("https", customClient)
	}

	adapter := &EmbeddedAdapter{worktree: opts.Worktree}
	adapter.worker = newStatusWorker(adapter.computeStatus)
	return adapter
}

func (a *EmbeddedAdapter) IsNative() bool { return false }

// open mounts the repository at root. The .git storage filesystem is always
// the raw OS filesystem: rewriting version-control metadata would render the
// repository unusable, so only the working tree goes through the overlay.
func (a *EmbeddedAdapter) open(root string) (*git.Repository, error) {
	repo, err := git.Open(a.storage(root), a.worktree(root))
	if err == git.ErrRepositoryNotExists {
		return nil, errors.NotFoundError{What: "repository"}
	}
	return repo, err
}

func (a *EmbeddedAdapter) storage(root string) *filesystem.Storage {
	dotgit := osfs.New(filepath.Join(root, git.GitDirName))
	return filesystem.NewStorage(dotgit, cache.NewObjectLRUDefault())
}

func (a *EmbeddedAdapter) Init(root, branch string) error {
	repo, err := git.Init(a.storage(root), a.worktree(root))
	if err != nil {
		return errors.WithContext(err, "init")
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	return repo.Storer.SetReference(head)
}

func (a *EmbeddedAdapter) Clone(ctx context.Context, root string, opts CloneOptions) error {
	cloneOpts := &git.CloneOptions{
		URL:          opts.URL,
		Auth:         tokenAuth(opts.Token),
		SingleBranch: true,
		Depth:        opts.Depth,
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}
	_, err := git.CloneContext(ctx, a.storage(root), a.worktree(root), cloneOpts)
	return a.classify(root, opts.Branch, err)
}

func (a *EmbeddedAdapter) Add(root, path string) error {
	wt, err := a.openWorktree(root)
	if err != nil {
		return err
	}
	_, err = wt.Add(path)
	return err
}

func (a *EmbeddedAdapter) Remove(root, path string) error {
	wt, err := a.openWorktree(root)
	if err != nil {
		return err
	}
	_, err = wt.Remove(path)
	return err
}

func (a *EmbeddedAdapter) Commit(root, message string, author Author, parents []string) (string, error) {
	repo, err := a.open(root)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}

	// go-git happily records empty commits, so cleanliness is checked here
	// to match the native adapter's behavior.
	if len(parents) == 0 {
		status, err := wt.Status()
		if err != nil {
			return "", errors.WithContext(err, "status before commit")
		}
		if status.IsClean() {
			return "", errors.NothingToCommitError{}
		}
	}

	var parentHashes []plumbing.Hash
	for _, parent := range parents {
		parentHashes = append(parentHashes, plumbing.NewHash(parent))
	}

	when := author.When
	if when.IsZero() {
		when = time.Now()
	}
	sig := &object.Signature{Name: author.Name, Email: author.Email, When: when}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:  sig,
		Parents: parentHashes,
	})
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func (a *EmbeddedAdapter) Pull(ctx context.Context, root string, opts PullOptions) error {
	wt, err := a.openWorktree(root)
	if err != nil {
		return err
	}
	pullOpts := &git.PullOptions{
		RemoteName:   remoteName(opts.Remote),
		SingleBranch: true,
		Auth:         tokenAuth(opts.Token),
	}
	if opts.Branch != "" {
		pullOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}
	return a.classify(root, opts.Branch, wt.PullContext(ctx, pullOpts))
}

func (a *EmbeddedAdapter) Push(ctx context.Context, root string, opts PushOptions) error {
	repo, err := a.open(root)
	if err != nil {
		return err
	}
	return a.classify(root, opts.Branch, repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName(opts.Remote),
		Auth:       tokenAuth(opts.Token),
	}))
}

func (a *EmbeddedAdapter) Fetch(ctx context.Context, root string, opts FetchOptions) error {
	repo, err := a.open(root)
	if err != nil {
		return err
	}
	remote := remoteName(opts.Remote)
	fetchOpts := &git.FetchOptions{
		RemoteName: remote,
		Depth:      opts.Depth,
		Force:      true,
		Auth:       tokenAuth(opts.Token),
	}
	if opts.Branch != "" {
		spec := gitconfig.RefSpec("+refs/heads/" + opts.Branch +
			":refs/remotes/" + remote + "/" + opts.Branch)
		fetchOpts.RefSpecs = []gitconfig.RefSpec{spec}
	}
	return a.classify(root, opts.Branch, repo.FetchContext(ctx, fetchOpts))
}

func (a *EmbeddedAdapter) AddRemote(root, name, url string) error {
	repo, err := a.open(root)
	if err != nil {
		return err
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName(name),
		URLs: []string{url},
	})
	if err == git.ErrRemoteExists {
		return nil
	}
	return err
}

func (a *EmbeddedAdapter) CurrentBranch(root string) (string, error) {
	repo, err := a.open(root)
	if err != nil {
		return "", err
	}
	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", errors.WithContext(err, "read HEAD")
	}
	if head.Type() != plumbing.SymbolicReference {
		return "", errors.New("HEAD is detached")
	}
	return head.Target().Short(), nil
}

func (a *EmbeddedAdapter) ResolveRef(root, ref string) (string, error) {
	repo, err := a.open(root)
	if err != nil {
		return "", err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", errors.NotFoundError{What: ref}
	}
	return hash.String(), nil
}

func (a *EmbeddedAdapter) GetConfig(root, key string) (string, error) {
	repo, err := a.open(root)
	if err != nil {
		return "", err
	}
	cfg, err := repo.Config()
	if err != nil {
		return "", errors.WithContext(err, "read config")
	}
	for name, remote := range cfg.Remotes {
		if key == "remote."+name+".url" && len(remote.URLs) > 0 {
			return remote.URLs[0], nil
		}
	}
	for name, branch := range cfg.Branches {
		if key == "branch."+name+".remote" {
			return branch.Remote, nil
		}
	}
	return "", errors.NotFoundError{What: "config key " + key}
}

// DiscardChanges restores exactly the given paths to their HEAD content,
// removing them from the working tree when HEAD doesn't have them.
func (a *EmbeddedAdapter) DiscardChanges(root string, paths []string) error {
	repo, err := a.open(root)
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return errors.WithContext(err, "resolve HEAD")
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return errors.WithContext(err, "read HEAD commit")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	for _, path := range paths {
		file, err := commit.File(path)
		if err == object.ErrFileNotFound {
			if err := wt.Filesystem.Remove(path); err != nil {
				log.WithError(err).WithField("path", path).Warn("Failed to remove discarded file")
			}
			continue
		} else if err != nil {
			return errors.WithContext(err, "read blob")
		}

		contents, err := file.Contents()
		if err != nil {
			return errors.WithContext(err, "read contents")
		}
		if err := writeBillyFile(wt.Filesystem, path, contents); err != nil {
			return errors.WithContext(err, "restore "+path)
		}
		if _, err := wt.Add(path); err != nil {
			return errors.WithContext(err, "unstage "+path)
		}
	}
	return nil
}

func (a *EmbeddedAdapter) ResetHard(root, ref string) error {
	repo, err := a.open(root)
	if err != nil {
		return err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return errors.NotFoundError{What: ref}
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: *hash})
}

func (a *EmbeddedAdapter) ReadFileAt(root, ref, path string) (string, error) {
	repo, err := a.open(root)
	if err != nil {
		return "", err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", errors.NotFoundError{What: ref}
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return "", errors.WithContext(err, "read commit")
	}
	file, err := commit.File(path)
	if err == object.ErrFileNotFound {
		return "", errors.NotFoundError{What: path + "@" + ref}
	} else if err != nil {
		return "", err
	}
	return file.Contents()
}

// StatusMatrix enumerates status on the shared worker goroutine so that large
// trees never block the caller's execution context.
func (a *EmbeddedAdapter) StatusMatrix(root string, ignoredSubpaths []string) (StatusMatrix, error) {
	return a.worker.enumerate(root, ignoredSubpaths)
}

func (a *EmbeddedAdapter) computeStatus(root string, ignoredSubpaths []string) (StatusMatrix, error) {
	repo, err := a.open(root)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}

	matrix := StatusMatrix{}

	// Everything reachable from HEAD starts out synced; worktree and index
	// differences overwrite below. An unborn HEAD just means no tracked files.
	if head, err := repo.Head(); err == nil {
		commit, err := repo.CommitObject(head.Hash())
		if err != nil {
			return nil, errors.WithContext(err, "read HEAD commit")
		}
		tree, err := commit.Tree()
		if err != nil {
			return nil, errors.WithContext(err, "read HEAD tree")
		}
		err = tree.Files().ForEach(func(f *object.File) error {
			if !underIgnored(f.Name, ignoredSubpaths) {
				matrix[f.Name] = StateSynced
			}
			return nil
		})
		if err != nil {
			return nil, errors.WithContext(err, "walk HEAD tree")
		}
	}

	status, err := wt.Status()
	if err != nil {
		return nil, errors.WithContext(err, "status")
	}
	for path, fileStatus := range status {
		if underIgnored(path, ignoredSubpaths) {
			continue
		}
		switch {
		case fileStatus.Worktree == git.Untracked:
			matrix[path] = StateUntracked
		case fileStatus.Staging == git.UpdatedButUnmerged:
			matrix[path] = StateConflict
		case fileStatus.Worktree == git.Unmodified && fileStatus.Staging == git.Unmodified:
			matrix[path] = StateSynced
		default:
			matrix[path] = StateModified
		}
	}
	return matrix, nil
}

// AheadCount walks local first-parent history looking for the remote OID
// within a fixed depth window. Histories deeper than the window silently
// under-report; see the engine's scope tracker for why that's acceptable.
func (a *EmbeddedAdapter) AheadCount(root, remoteRef string) (int, error) {
	repo, err := a.open(root)
	if err != nil {
		return 0, err
	}
	remoteOID, err := a.ResolveRef(root, remoteRef)
	if err != nil {
		return 0, err
	}
	head, err := repo.Head()
	if err != nil {
		return 0, errors.WithContext(err, "resolve HEAD")
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return 0, errors.WithContext(err, "read HEAD commit")
	}
	for count := 0; count < historyWindow; count++ {
		if commit.Hash.String() == remoteOID {
			return count, nil
		}
		if commit.NumParents() == 0 {
			return count + 1, nil
		}
		commit, err = commit.Parent(0)
		if err != nil {
			return count + 1, nil
		}
	}
	return historyWindow, nil
}

// GC is a no-op for the embedded variant: go-git doesn't repack, and loose
// objects are harmless at the scale of a notes workspace.
func (a *EmbeddedAdapter) GC(root string) error {
	log.WithField("root", root).Debug("Skipping garbage collection on the embedded adapter")
	return nil
}

// classify maps go-git sentinel errors to the engine's typed errors.
func (a *EmbeddedAdapter) classify(root, branch string, err error) error {
	switch err {
	case nil, git.NoErrAlreadyUpToDate:
		return nil
	case git.ErrUnstagedChanges:
		return errors.CheckoutConflictError{Paths: a.dirtyPaths(root)}
	case git.ErrNonFastForwardUpdate:
		// Divergent histories. go-git refuses the merge before touching the
		// worktree, so no conflict markers exist on disk; the per-file detail
		// comes from comparing both tips against their common ancestor.
		return errors.MergeConflictError{Paths: a.divergedPaths(root, branch)}
	case plumbing.ErrReferenceNotFound, git.ErrRemoteNotFound,
		transport.ErrEmptyRemoteRepository, transport.ErrRepositoryNotFound:
		return errors.NotFoundError{What: "remote ref"}
	default:
		return err
	}
}

// divergedPaths lists the files changed on both sides since the histories
// split: the set a real merge would have to reconcile. Best effort; an
// unresolvable remote ref or unrelated histories yield an empty list.
func (a *EmbeddedAdapter) divergedPaths(root, branch string) []string {
	repo, err := a.open(root)
	if err != nil {
		return nil
	}
	headRef, err := repo.Head()
	if err != nil {
		return nil
	}
	local, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil
	}
	remote := remoteTip(repo, branch)
	if remote == nil {
		return nil
	}

	bases, err := local.MergeBase(remote)
	if err != nil || len(bases) == 0 {
		return nil
	}
	localChanged, err := changedPaths(bases[0], local)
	if err != nil {
		return nil
	}
	remoteChanged, err := changedPaths(bases[0], remote)
	if err != nil {
		return nil
	}

	var paths []string
	for path := range localChanged {
		if remoteChanged[path] {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// remoteTip resolves the just-fetched tip of the tracked branch. The pull
// that failed has already updated the remote-tracking ref.
func remoteTip(repo *git.Repository, branch string) *object.Commit {
	candidates := []string{"origin/" + branch, "origin/master"}
	if branch == "" {
		candidates = candidates[1:]
	}
	for _, rev := range candidates {
		hash, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			continue
		}
		if commit, err := repo.CommitObject(*hash); err == nil {
			return commit
		}
	}
	return nil
}

func changedPaths(from, to *object.Commit) (map[string]bool, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return nil, err
	}
	paths := map[string]bool{}
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		paths[name] = true
	}
	return paths, nil
}

// dirtyPaths lists worktree-modified tracked files, the set a checkout would
// refuse to overwrite.
func (a *EmbeddedAdapter) dirtyPaths(root string) []string {
	wt, err := a.openWorktree(root)
	if err != nil {
		return nil
	}
	status, err := wt.Status()
	if err != nil {
		return nil
	}
	var paths []string
	for path, fileStatus := range status {
		if fileStatus.Worktree != git.Unmodified && fileStatus.Worktree != git.Untracked {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

func (a *EmbeddedAdapter) openWorktree(root string) (*git.Worktree, error) {
	repo, err := a.open(root)
	if err != nil {
		return nil, err
	}
	return repo.Worktree()
}

func writeBillyFile(fs billy.Filesystem, path, contents string) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte(contents)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func tokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	// Smart-HTTP hosts accept the bearer token as the userinfo component of
	// the URL; go-git expresses that as basic auth with the token as user.
	return &githttp.BasicAuth{Username: token}
}
