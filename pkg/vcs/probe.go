package vcs

import (
	"os/exec"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	probeOnce   sync.Once
	probeResult bool

	// lookPath is swapped out in tests.
	lookPath = exec.LookPath
)

// NativeAvailable probes for the git binary once per process lifetime and
// caches the result. Orchestration code never re-probes: a binary that
// vanishes mid-session is handled as per-call degradation inside the native
// adapter, not by flipping variants under a running scope.
func NativeAvailable() bool {
	probeOnce.Do(func() {
		_, err := lookPath("git")
		probeResult = err == nil
		if !probeResult {
			log.WithError(err).Info("git binary not found; using the embedded adapter for all scopes")
		}
	})
	return probeResult
}

// Detect selects the adapter variant for this platform: the native adapter
// when the git binary is reachable, the embedded adapter otherwise. The
// native adapter keeps the embedded one as its per-call status fallback.
func Detect(opts EmbeddedOptions) Adapter {
	embedded := NewEmbeddedAdapter(opts)
	if NativeAvailable() {
		return NewNativeAdapter(embedded)
	}
	return embedded
}
