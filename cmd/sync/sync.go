// Package sync implements `afsync sync`: a one-shot sync cycle for one scope
// or every writable scope, without starting the daemon.
package sync

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/util"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/config"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/engine"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/sandbox"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

// New creates a new `sync` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [SCOPE]",
		Short: "Commit, pull, and push pending changes now.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			scopeID := ""
			if len(args) == 1 {
				scopeID = args[0]
			}
			if err := run(scopeID); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(scopeID string) error {
	workspace, err := config.ParseWorkspace()
	if err != nil {
		return err
	}

	scopes := workspace.Scopes
	if scopeID != "" {
		scope, err := workspace.FindScope(scopeID)
		if err != nil {
			return err
		}
		scopes = []config.Scope{scope}
	}

	adapter := vcs.Detect(vcs.EmbeddedOptions{
		Worktree: func(root string) billy.Filesystem {
			return sandbox.New(osfs.New(root))
		},
	})
	orch := engine.New(engine.Options{
		Adapter:  adapter,
		Identity: config.NewIdentity(workspace),
	})

	for _, scope := range scopes {
		if scope.ReadOnly {
			if scopeID != "" {
				return errors.NewFriendlyError("Scope %q is read-only; it is "+
					"updated by the daemon's distribution channel.", scope.ID)
			}
			continue
		}

		root := workspace.ScopeRoot(scope)
		branch := scope.Branch
		if branch == "" {
			if branch, err = adapter.CurrentBranch(root); err != nil {
				return errors.WithContext(err, "resolve branch of "+scope.ID)
			}
		}
		err := orch.AddScope(&engine.Scope{
			ID:              scope.ID,
			RootPath:        root,
			Branch:          branch,
			RemoteURL:       scope.Remote,
			IgnoredSubpaths: workspace.NestedScopePaths(scope),
		})
		if err != nil {
			return err
		}

		if err := orch.Sync(context.Background(), scope.ID); err != nil {
			return errors.WithContext(err, "sync "+scope.ID)
		}
		log.WithField("scope", scope.ID).Info("Scope synced")
	}
	return nil
}
