package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of afsync.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("version: %s\n", version.Version)
		},
	}
}
