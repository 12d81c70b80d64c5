package engine

import (
	"sync"
	"time"
)

// Scope is one governed local↔remote binding: a sub-tree of the workspace
// mirrored against a remote repository. The workspace root itself is the
// scope with the empty id.
type Scope struct {
	ID        string
	RootPath  string
	Branch    string
	RemoteURL string

	// IsNative records which adapter variant serves this scope.
	IsNative bool

	// IgnoredSubpaths lists nested scopes to exclude when scanning, so a
	// root-scope scan never walks into a nested scope's files.
	IgnoredSubpaths []string

	lastGC time.Time

	// trigger coalesces scheduled sync requests while one is pending.
	trigger chan struct{}
}

// lockRegistry is the per-scope mutex arena. A scope's mutex is created
// lazily exactly once and shared across every caller — UI actions, timers,
// and other windows all serialize through the same handle. It is never
// constructed ad hoc per call.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: map[string]*sync.Mutex{}}
}

func (r *lockRegistry) get(scopeID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[scopeID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[scopeID] = lock
	}
	return lock
}
