// Package statuscache answers "what changed in this scope" queries cheaply
// with stale-while-revalidate semantics. It sits beside the sync orchestrator
// but is deliberately decoupled from its mutex: status reads are advisory UI
// hints and must never block on, or contend with, a running sync cycle.
package statuscache

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

// refreshDebounce is how long after the last file-change burst a proactive
// background refresh fires.
const refreshDebounce = 3 * time.Second

// FetchFunc produces a fresh status matrix for a scope. It runs on a
// background goroutine and may take arbitrarily long on large trees.
type FetchFunc func(scopeID string) (vcs.StatusMatrix, error)

// Options configures a Cache.
type Options struct {
	Fetch FetchFunc

	// Interest reports whether any UI consumer currently cares about the
	// scope. When nothing is visible the refresh is skipped entirely; the
	// cache keeps serving stale data. nil means always interested.
	Interest func(scopeID string) bool

	// OnRefresh fires after a background refresh completes.
	OnRefresh func(scopeID string)

	Clock clockwork.Clock
}

type entry struct {
	dirty         bool
	isFetching    bool
	refreshQueued bool
	data          vcs.StatusMatrix
}

type scopeRoot struct {
	id   string
	root string // workspace-relative; "" is the workspace root
}

// Cache is the per-workspace status cache. One entry per registered scope.
type Cache struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*entry
	scopes  []scopeRoot
}

// New returns an empty Cache.
func New(opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Cache{
		opts:    opts,
		entries: map[string]*entry{},
	}
}

// Register adds a scope and its workspace-relative root for event routing.
// Entries start dirty so the first Get triggers a refresh.
func (c *Cache) Register(scopeID, root string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[scopeID]; ok {
		return
	}
	c.entries[scopeID] = &entry{dirty: true, data: vcs.StatusMatrix{}}
	c.scopes = append(c.scopes, scopeRoot{id: scopeID, root: root})
}

// Unregister drops a scope from the cache.
func (c *Cache) Unregister(scopeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, scopeID)
	for i, scope := range c.scopes {
		if scope.id == scopeID {
			c.scopes = append(c.scopes[:i], c.scopes[i+1:]...)
			return
		}
	}
}

// Get returns the cached matrix immediately, never blocking the caller. A
// dirty entry additionally kicks off at most one background refresh, gated on
// consumer interest; the stale data is still returned right away.
func (c *Cache) Get(scopeID string) vcs.StatusMatrix {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scopeID]
	if !ok {
		return vcs.StatusMatrix{}
	}
	if e.dirty && !e.isFetching && c.interested(scopeID) {
		e.isFetching = true
		go c.refresh(scopeID)
	}
	return e.data
}

// Dirty reports whether the scope's entry is pending a refresh.
func (c *Cache) Dirty(scopeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scopeID]
	return ok && e.dirty
}

func (c *Cache) interested(scopeID string) bool {
	if c.opts.Interest == nil {
		return true
	}
	return c.opts.Interest(scopeID)
}

func (c *Cache) refresh(scopeID string) {
	data, err := c.opts.Fetch(scopeID)

	c.mu.Lock()
	e, ok := c.entries[scopeID]
	if !ok {
		c.mu.Unlock()
		return
	}
	// Data, dirty, and isFetching flip together so readers never observe a
	// half-updated entry.
	if err != nil {
		log.WithError(err).WithField("scope", scopeID).Warn("Status refresh failed")
		e.isFetching = false
		c.mu.Unlock()
		return
	}
	e.data = data
	e.dirty = false
	e.isFetching = false
	c.mu.Unlock()

	if c.opts.OnRefresh != nil {
		c.opts.OnRefresh(scopeID)
	}
}

// FileChanged routes a workspace-relative change event to the owning scope by
// longest-prefix match, dirties it immediately, and schedules a debounced
// proactive refresh. Duplicate events while one refresh is scheduled coalesce.
func (c *Cache) FileChanged(relPath string) {
	scopeID, ok := c.route(relPath)
	if !ok {
		return
	}

	c.mu.Lock()
	e, entryOK := c.entries[scopeID]
	if !entryOK {
		c.mu.Unlock()
		return
	}
	e.dirty = true
	queue := !e.refreshQueued
	if queue {
		e.refreshQueued = true
	}
	c.mu.Unlock()

	if queue {
		go func() {
			<-c.opts.Clock.After(refreshDebounce)
			c.mu.Lock()
			if e, ok := c.entries[scopeID]; ok {
				e.refreshQueued = false
			}
			c.mu.Unlock()
			c.Get(scopeID)
		}()
	}
}

// route picks the most specific scope whose root is a prefix of relPath.
// More specific scopes win over the workspace root, so a root-scope
// subscription never claims events belonging to a nested scope.
func (c *Cache) route(relPath string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	best, bestLen, found := "", -1, false
	for _, scope := range c.scopes {
		if !underRoot(relPath, scope.root) {
			continue
		}
		if len(scope.root) > bestLen {
			best, bestLen, found = scope.id, len(scope.root), true
		}
	}
	return best, found
}

func underRoot(relPath, root string) bool {
	if root == "" {
		return true
	}
	return relPath == root || strings.HasPrefix(relPath, root+"/")
}
