// Package conflict detects merge conflicts, extracts per-file three-way
// content, and resolves them either automatically (policy-listed workspace
// configuration files) or through an external merge UI collaborator.
package conflict

import (
	"context"
	"path"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/sandbox"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

var fs = afero.NewOsFs()

// ScopeConfigFileName is the reserved per-scope configuration file.
const ScopeConfigFileName = ".afscope.yaml"

// autoResolveBasenames are workspace-configuration files that encode
// machine-local preferences. A remote peer must never overwrite them, so
// conflicts on them always resolve local-wins without user interaction.
var autoResolveBasenames = map[string]bool{
	ScopeConfigFileName: true,
	"workspace.json":    true,
	"app.json":          true,
	"appearance.json":   true,
	"hotkeys.json":      true,
}

// Record holds the three-way inputs for one conflicted file. It is ephemeral:
// computed on demand when a conflict is detected, discarded once the file is
// resolved.
type Record struct {
	Path          string
	LocalContent  string
	RemoteContent string
}

// Resolver is the merge-UI collaborator. Given a scope root and the conflict
// records, it returns resolved content per path; paths absent from the result
// are still unresolved.
type Resolver interface {
	ResolveConflicts(root string, records []Record) (map[string]string, error)
}

// AutoResolvable reports whether a conflicted path is covered by the
// local-wins auto-resolution policy.
func AutoResolvable(relPath string) bool {
	relPath = path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	for _, segment := range strings.Split(relPath, "/") {
		if segment == sandbox.ConfigDirName {
			return true
		}
	}
	return autoResolveBasenames[path.Base(relPath)]
}

// DetectPaths converges on the set of conflicted paths for a failed merge.
// The structured error is authoritative when it carries a file list; the
// fallback scans the status enumeration for modified-in-workdir paths and
// probes each for literal conflict markers on disk.
func DetectPaths(adapter vcs.Adapter, root string, mergeErr error, ignoredSubpaths []string) ([]string, error) {
	if conflictErr, ok := errors.RootCause(mergeErr).(errors.MergeConflictError); ok {
		if len(conflictErr.Paths) > 0 {
			paths := append([]string(nil), conflictErr.Paths...)
			sort.Strings(paths)
			return paths, nil
		}
	}

	matrix, err := adapter.StatusMatrix(root, ignoredSubpaths)
	if err != nil {
		return nil, errors.WithContext(err, "status for conflict scan")
	}

	var paths []string
	for relPath, state := range matrix {
		if state != vcs.StateModified && state != vcs.StateConflict {
			continue
		}
		contents, err := afero.ReadFile(fs, path.Join(root, relPath))
		if err != nil {
			continue
		}
		if state == vcs.StateConflict || HasMarkers(string(contents)) {
			paths = append(paths, relPath)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// remoteRefCandidates is the preference order for locating the remote side
// of a merge: the just-fetched head, then the tracked branch, then the
// historical default branch name.
func remoteRefCandidates(branch string) []string {
	return []string{"FETCH_HEAD", "origin/" + branch, "origin/master"}
}

// ResolveRemoteRef returns the first resolvable remote ref for branch.
func ResolveRemoteRef(adapter vcs.Adapter, root, branch string) (string, error) {
	for _, ref := range remoteRefCandidates(branch) {
		if oid, err := adapter.ResolveRef(root, ref); err == nil {
			return oid, nil
		}
	}
	return "", errors.NotFoundError{What: "remote ref for " + branch}
}

// ExtractRecord computes the three-way content for one conflicted file.
// On-disk conflict markers are preferred; the fallback resolves HEAD and a
// remote ref and reads each blob from the object store. Missing sides degrade
// to empty content rather than failing, so resolution can always proceed.
func ExtractRecord(adapter vcs.Adapter, root, branch, relPath string) Record {
	record := Record{Path: relPath}

	if contents, err := afero.ReadFile(fs, path.Join(root, relPath)); err == nil {
		if local, remote, ok := parseMarkers(string(contents)); ok {
			record.LocalContent = local
			record.RemoteContent = remote
			return record
		}
		record.LocalContent = string(contents)
	}

	if record.LocalContent == "" {
		if contents, err := adapter.ReadFileAt(root, "HEAD", relPath); err == nil {
			record.LocalContent = contents
		}
	}

	if remoteOID, err := ResolveRemoteRef(adapter, root, branch); err == nil {
		if contents, err := adapter.ReadFileAt(root, remoteOID, relPath); err == nil {
			record.RemoteContent = contents
		}
	}
	return record
}

// Finalize writes the resolved contents, stages them, and records a merge
// commit with two parents: the pre-merge local head and the resolved-against
// remote ref. The merge ancestry is preserved rather than rewritten, then the
// result is pushed.
func Finalize(ctx context.Context, adapter vcs.Adapter, root, branch string,
	resolved map[string]string, author vcs.Author, token string) error {

	localHead, err := adapter.ResolveRef(root, "HEAD")
	if err != nil {
		return errors.WithContext(err, "resolve local head")
	}
	remoteOID, err := ResolveRemoteRef(adapter, root, branch)
	if err != nil {
		return errors.WithContext(err, "resolve remote ref")
	}

	for relPath, contents := range resolved {
		if err := afero.WriteFile(fs, path.Join(root, relPath), []byte(contents), 0644); err != nil {
			return errors.WithContext(err, "write resolved "+relPath)
		}
		if err := adapter.Add(root, relPath); err != nil {
			return errors.WithContext(err, "stage resolved "+relPath)
		}
	}

	parents := []string{localHead}
	if remoteOID != localHead {
		parents = append(parents, remoteOID)
	}
	if _, err := adapter.Commit(root, "Merge remote changes", author, parents); err != nil {
		return errors.WithContext(err, "record merge commit")
	}

	err = adapter.Push(ctx, root, vcs.PushOptions{Branch: branch, Token: token})
	if err != nil {
		return errors.WithContext(err, "push merge")
	}
	log.WithField("files", len(resolved)).Info("Merge conflict resolved and pushed")
	return nil
}
