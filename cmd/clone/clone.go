// Package clone implements `afsync clone`: it clones a remote repository into
// the workspace and registers it as a scope.
package clone

import (
	"context"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/util"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/config"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/sandbox"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

// sandboxedWorktree builds the checkout filesystem for a freshly cloned
// scope. A clone is remote-originated content like any pull, so its writes go
// through the same sandbox overlay the daemon uses.
func sandboxedWorktree(root string) billy.Filesystem {
	return sandbox.New(osfs.New(root))
}

// New creates a new `clone` command.
func New() *cobra.Command {
	var id, scopePath, branch string
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "clone REMOTE",
		Short: "Clone a remote repository into the workspace as a new scope.",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0], id, scopePath, branch, readOnly); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&id, "id", "",
		"Scope id. Defaults to the repository name.")
	cmd.Flags().StringVar(&scopePath, "path", "",
		"Workspace-relative directory for the scope. Defaults to the scope id.")
	cmd.Flags().StringVar(&branch, "branch", "main",
		"Branch to track.")
	cmd.Flags().BoolVar(&readOnly, "read-only", false,
		"Register the scope on the distribution channel instead of two-way sync.")
	return cmd
}

func run(remote, id, scopePath, branch string, readOnly bool) error {
	workspace, err := config.ParseWorkspace()
	if err != nil {
		return err
	}

	if id == "" {
		id = deriveID(remote)
	}
	if scopePath == "" {
		scopePath = id
	}
	if _, err := workspace.FindScope(id); err == nil {
		return errors.NewFriendlyError("A scope named %q already exists. "+
			"Pass --id to pick a different name.", id)
	}

	token, err := config.NewIdentity(workspace).Token()
	if err != nil {
		// Public repositories clone fine without credentials.
		log.WithError(err).Debug("No token configured; cloning anonymously")
	}

	scope := config.Scope{
		ID:       id,
		Path:     scopePath,
		Branch:   branch,
		Remote:   remote,
		ReadOnly: readOnly,
	}
	root := workspace.ScopeRoot(scope)

	adapter := vcs.Detect(vcs.EmbeddedOptions{Worktree: sandboxedWorktree})
	cloneOpts := vcs.CloneOptions{URL: remote, Branch: branch, Token: token}
	if readOnly {
		// Distribution scopes never need history beyond the tip.
		cloneOpts.Depth = 1
	}
	if err := adapter.Clone(context.Background(), root, cloneOpts); err != nil {
		return errors.WithContext(err, "clone")
	}

	workspace.Scopes = append(workspace.Scopes, scope)
	if err := config.WriteWorkspace(workspace); err != nil {
		return errors.WithContext(err, "register scope")
	}

	scopeConfig := config.ScopeConfig{ID: id, Branch: branch, Remote: remote, ReadOnly: readOnly}
	if err := config.WriteScopeConfig(root, scopeConfig); err != nil {
		return errors.WithContext(err, "write scope config")
	}

	log.WithField("scope", id).WithField("path", root).Info("Scope cloned")
	return nil
}

// deriveID names the scope after the repository.
func deriveID(remote string) string {
	remote = strings.TrimSuffix(strings.TrimSuffix(remote, "/"), ".git")
	if idx := strings.LastIndexAny(remote, "/:"); idx >= 0 {
		remote = remote[idx+1:]
	}
	return path.Base(remote)
}
