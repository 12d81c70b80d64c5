package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/clone"
	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/status"
	syncCmd "github.com/RahmaniErfan/abstract-folder-sub001/cmd/sync"
	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/syncd"
	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/util"
	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "AFSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "afsync",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		clone.New(),
		status.New(),
		syncCmd.New(),
		syncd.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
