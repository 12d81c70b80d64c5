// Package status implements `afsync status`: a one-shot report of each
// scope's file states and how far it is ahead of its remote.
package status

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/util"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/config"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

// New creates a new `status` command.
func New() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status [SCOPE]",
		Short: "Show the sync status of the workspace's scopes.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			scopeID := ""
			if len(args) == 1 {
				scopeID = args[0]
			}
			if err := run(scopeID, all); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&all, "all", false,
		"Include synced files in the report, not just pending changes.")
	return cmd
}

func run(scopeID string, all bool) error {
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

	adapter := vcs.Detect(vcs.EmbeddedOptions{})
	for _, scope := range scopes {
		if err := printScope(adapter, workspace, scope, all); err != nil {
			return errors.WithContext(err, "status of "+scope.ID)
		}
	}
	return nil
}

func printScope(adapter vcs.Adapter, workspace config.Workspace, scope config.Scope, all bool) error {
	root := workspace.ScopeRoot(scope)
	matrix, err := adapter.StatusMatrix(root, workspace.NestedScopePaths(scope))
	if err != nil {
		return err
	}

	branch := scope.Branch
	if branch == "" {
		if branch, err = adapter.CurrentBranch(root); err != nil {
			return errors.WithContext(err, "resolve branch")
		}
	}

	header := fmt.Sprintf("%s (%s)", scope.ID, branch)
	if ahead, err := adapter.AheadCount(root, "origin/"+branch); err == nil && ahead > 0 {
		header += fmt.Sprintf(" — %d commit(s) ahead", ahead)
	}
	fmt.Println(header)

	paths := make([]string, 0, len(matrix))
	for path := range matrix {
		if !all && matrix[path] == vcs.StateSynced {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		fmt.Println("  clean")
	}
	for _, path := range paths {
		fmt.Printf("  %-9s  %s\n", matrix[path], path)
	}
	return nil
}
