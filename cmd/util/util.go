// Package util holds helpers shared by the CLI commands.
package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

// FriendlyMessage extracts the user-facing message from err, if it carries
// one anywhere in its context chain.
func FriendlyMessage(err error) (string, bool) {
	for {
		if friendly, ok := err.(errors.FriendlyError); ok {
			return friendly.FriendlyMessage(), true
		}
		ctxErr, ok := err.(errors.ContextError)
		if !ok {
			return "", false
		}
		err = ctxErr.Err
	}
}

// HandleFatalError prints err in the friendliest form available and exits.
func HandleFatalError(err error) {
	if message, ok := FriendlyMessage(err); ok {
		fmt.Fprintln(os.Stderr, message)
	} else {
		log.WithError(err).Error("Fatal error")
	}
	os.Exit(1)
}

// HandlePanic converts a panic into a crash report. It should be deferred at
// the top of main so that no goroutine dump is the first thing a user sees.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "afsync crashed: %v\n\n%s", r, debug.Stack())
	os.Exit(1)
}
