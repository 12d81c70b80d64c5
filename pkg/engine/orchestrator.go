// Package engine owns the sync orchestrator: the mutex-serialized state
// machine that runs the commit→pull→push cycle for each scope, recovers
// interrupted merges at startup, throttles garbage collection, and flushes
// pending work at shutdown.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/conflict"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

var fs = afero.NewOsFs()

// gcInterval throttles opportunistic garbage collection.
const gcInterval = 24 * time.Hour

// autoCommitMessage is the message recorded by background cycles.
const autoCommitMessage = "afsync: automatic backup"

// IdentityService resolves the user's credentials for commit attribution.
// A missing token is a recoverable, user-facing condition, not a crash.
type IdentityService interface {
	// Token returns the bearer token, or a MissingTokenError.
	Token() (string, error)

	// Author resolves the token to the commit author identity.
	Author(token string) (vcs.Author, error)
}

// Orchestrator serializes all mutating operations per scope and delegates
// the version-control verbs to the configured adapter.
type Orchestrator struct {
	adapter  vcs.Adapter
	identity IdentityService
	resolver conflict.Resolver
	bus      *Bus
	clock    clockwork.Clock

	locks *lockRegistry

	mu     sync.Mutex
	scopes map[string]*Scope
}

// Options configures an Orchestrator.
type Options struct {
	Adapter  vcs.Adapter
	Identity IdentityService

	// Resolver is the merge-UI collaborator for conflicts the policy can't
	// resolve automatically. nil leaves manual conflicts unresolved.
	Resolver conflict.Resolver

	Bus   *Bus
	Clock clockwork.Clock
}

// New returns an Orchestrator with no scopes.
func New(opts Options) *Orchestrator {
	if opts.Bus == nil {
		opts.Bus = NewBus()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		adapter:  opts.Adapter,
		identity: opts.Identity,
		resolver: opts.Resolver,
		bus:      opts.Bus,
		clock:    opts.Clock,
		locks:    newLockRegistry(),
		scopes:   map[string]*Scope{},
	}
}

// Bus exposes the orchestrator's event bus for subscribers.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// AddScope registers a scope, runs startup recovery for it, and starts its
// trigger loop. Recovery happens before any sync request is accepted.
func (o *Orchestrator) AddScope(scope *Scope) error {
	scope.IsNative = o.adapter.IsNative()

	if err := o.recover(scope); err != nil {
		return errors.WithContext(err, "recover scope "+scope.ID)
	}

	o.mu.Lock()
	if _, exists := o.scopes[scope.ID]; exists {
		o.mu.Unlock()
		return errors.New("scope already registered: " + scope.ID)
	}
	scope.trigger = make(chan struct{}, 1)
	o.scopes[scope.ID] = scope
	o.mu.Unlock()

	go o.runLoop(scope)

	lock := o.locks.get(scope.ID)
	lock.Lock()
	o.maybeGC(scope)
	lock.Unlock()
	return nil
}

// RemoveScope deregisters a scope and stops its trigger loop. The scope's
// files are left untouched.
func (o *Orchestrator) RemoveScope(scopeID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if scope, ok := o.scopes[scopeID]; ok {
		close(scope.trigger)
		delete(o.scopes, scopeID)
	}
}

// Schedule requests a background sync for the scope. Duplicate requests
// while one is already pending collapse into a single cycle; requests during
// a running cycle queue exactly one follow-up. The send happens under o.mu,
// the same lock RemoveScope and Shutdown close the trigger under, so a
// concurrent removal can never turn this into a send on a closed channel.
func (o *Orchestrator) Schedule(scopeID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	scope, ok := o.scopes[scopeID]
	if !ok {
		return
	}
	select {
	case scope.trigger <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) runLoop(scope *Scope) {
	for range scope.trigger {
		if err := o.Sync(context.Background(), scope.ID); err != nil {
			log.WithError(err).WithField("scope", scope.ID).Error("Sync failed")
		}
	}
}

// Sync runs one full mutating cycle for the scope under its mutex. There is
// no mid-cycle cancellation: once the mutex is acquired the cycle runs to
// completion or failure.
func (o *Orchestrator) Sync(ctx context.Context, scopeID string) error {
	o.mu.Lock()
	scope, ok := o.scopes[scopeID]
	o.mu.Unlock()
	if !ok {
		return errors.New("unknown scope: " + scopeID)
	}

	lock := o.locks.get(scope.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.cycle(ctx, scope); err != nil {
		o.bus.Publish(Event{Scope: scope.ID, Kind: EventError, Detail: err.Error()})
		return err
	}
	o.maybeGC(scope)
	return nil
}

// cycle is the steady-state state machine:
// committing → pulling → pushing, with conflict excursions.
func (o *Orchestrator) cycle(ctx context.Context, scope *Scope) error {
	token, err := o.identity.Token()
	if err != nil {
		return err
	}
	author, err := o.identity.Author(token)
	if err != nil {
		return errors.WithContext(err, "resolve author")
	}

	if err := o.adapter.Add(scope.RootPath, "."); err != nil {
		return errors.WithContext(err, "stage changes")
	}
	if !o.adapter.IsNative() {
		// The native adapter's add already reconciles deletions; the
		// embedded one needs an explicit remove pass.
		if err := o.removeDeleted(scope); err != nil {
			return errors.WithContext(err, "stage deletions")
		}
	}

	_, err = o.adapter.Commit(scope.RootPath, autoCommitMessage, author, nil)
	if err != nil && !errors.IsNothingToCommit(err) {
		return errors.WithContext(err, "commit")
	}

	pullOpts := vcs.PullOptions{Branch: scope.Branch, Token: token}
	err = o.adapter.Pull(ctx, scope.RootPath, pullOpts)
	switch rootCause := errors.RootCause(err).(type) {
	case nil:
	case errors.NotFoundError:
		// First-ever sync: the remote has no history yet.
		log.WithField("scope", scope.ID).Debug("Remote ref not found; skipping pull")
	case errors.CheckoutConflictError:
		if recoverErr := o.recoverCheckout(ctx, scope, rootCause, pullOpts); recoverErr != nil {
			return recoverErr
		}
	case errors.MergeConflictError:
		return o.resolveMerge(ctx, scope, err, author, token)
	default:
		if err != nil {
			return errors.WithContext(err, "pull")
		}
	}

	err = o.adapter.Push(ctx, scope.RootPath, vcs.PushOptions{Branch: scope.Branch, Token: token})
	if err != nil {
		return errors.WithContext(err, "push")
	}
	return nil
}

// removeDeleted stages the removal of tracked paths that no longer exist on
// disk.
func (o *Orchestrator) removeDeleted(scope *Scope) error {
	matrix, err := o.adapter.StatusMatrix(scope.RootPath, scope.IgnoredSubpaths)
	if err != nil {
		return err
	}
	for path, state := range matrix {
		if state != vcs.StateModified {
			continue
		}
		exists, err := afero.Exists(fs, filepath.Join(scope.RootPath, path))
		if err != nil || exists {
			continue
		}
		if err := o.adapter.Remove(scope.RootPath, path); err != nil {
			return errors.WithContext(err, "remove "+path)
		}
	}
	return nil
}

// recoverCheckout discards local changes to exactly the blocking paths and
// retries the pull once. If recovery itself fails, the original conflict is
// re-surfaced rather than masked.
func (o *Orchestrator) recoverCheckout(ctx context.Context, scope *Scope,
	conflictErr errors.CheckoutConflictError, opts vcs.PullOptions) error {

	log.WithField("scope", scope.ID).WithField("paths", conflictErr.Paths).
		Warn("Checkout blocked by local changes; discarding and retrying")

	if err := o.adapter.DiscardChanges(scope.RootPath, conflictErr.Paths); err != nil {
		log.WithError(err).Warn("Discard failed during checkout recovery")
		return conflictErr
	}
	if err := o.adapter.Pull(ctx, scope.RootPath, opts); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		// Recovery failed: the original conflict is the actionable error,
		// not whatever the retry tripped over.
		log.WithError(err).Warn("Pull retry failed after discarding local changes")
		return conflictErr
	}
	return nil
}

// resolveMerge runs the conflict resolution protocol: converge on the
// conflict-path set, auto-resolve policy-listed files local-wins, escalate
// the rest to the merge-UI collaborator, then finalize with a two-parent
// merge commit and push.
func (o *Orchestrator) resolveMerge(ctx context.Context, scope *Scope,
	mergeErr error, author vcs.Author, token string) error {

	paths, err := conflict.DetectPaths(o.adapter, scope.RootPath, mergeErr, scope.IgnoredSubpaths)
	if err != nil || len(paths) == 0 {
		return mergeErr
	}

	resolved := map[string]string{}
	var manual []conflict.Record
	for _, path := range paths {
		record := conflict.ExtractRecord(o.adapter, scope.RootPath, scope.Branch, path)
		if conflict.AutoResolvable(path) {
			log.WithField("path", path).Info("Auto-resolving configuration file conflict: local wins")
			resolved[path] = record.LocalContent
			continue
		}
		manual = append(manual, record)
	}

	var unresolved []string
	if len(manual) > 0 {
		if o.resolver == nil {
			return mergeErr
		}
		results, err := o.resolver.ResolveConflicts(scope.RootPath, manual)
		if err != nil {
			return errors.WithContext(err, "manual resolution")
		}
		for _, record := range manual {
			content, ok := results[record.Path]
			if !ok {
				unresolved = append(unresolved, record.Path)
				continue
			}
			resolved[record.Path] = content
		}
	}

	if len(unresolved) > 0 {
		return errors.MergeConflictError{Paths: unresolved}
	}

	err = conflict.Finalize(ctx, o.adapter, scope.RootPath, scope.Branch, resolved, author, token)
	if err != nil {
		return err
	}
	o.bus.Publish(Event{Scope: scope.ID, Kind: EventUpdateAvailable, Detail: "merge-resolved"})
	return nil
}

// recover completes or abandons an interrupted merge before the scope
// accepts any new sync request. The decision is deterministic: leftover
// conflict markers mean the merge never finished resolving and is abandoned;
// a clean tree means resolution finished but the commit was interrupted, so
// it's completed.
func (o *Orchestrator) recover(scope *Scope) error {
	mergeHeadPath := filepath.Join(scope.RootPath, ".git", "MERGE_HEAD")
	mergeHeadRaw, err := afero.ReadFile(fs, mergeHeadPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("scope", scope.ID).Warn("Could not probe for an interrupted merge")
		}
		return nil
	}
	mergeHead := strings.TrimSpace(string(mergeHeadRaw))
	log.WithField("scope", scope.ID).Warn("Found an interrupted merge; recovering before first sync")

	matrix, err := o.adapter.StatusMatrix(scope.RootPath, scope.IgnoredSubpaths)
	if err != nil {
		return errors.WithContext(err, "status during recovery")
	}
	dirty := false
	for path, state := range matrix {
		if state == vcs.StateConflict {
			dirty = true
			break
		}
		if state != vcs.StateModified {
			continue
		}
		contents, err := afero.ReadFile(fs, filepath.Join(scope.RootPath, path))
		if err == nil && conflict.HasMarkers(string(contents)) {
			dirty = true
			break
		}
	}

	if dirty {
		log.WithField("scope", scope.ID).Warn("Abandoning interrupted merge: conflicts were never resolved")
		if err := o.adapter.ResetHard(scope.RootPath, "HEAD"); err != nil {
			return errors.WithContext(err, "abandon merge")
		}
	} else {
		token, err := o.identity.Token()
		if err != nil {
			return err
		}
		author, err := o.identity.Author(token)
		if err != nil {
			return err
		}
		head, err := o.adapter.ResolveRef(scope.RootPath, "HEAD")
		if err != nil {
			return errors.WithContext(err, "resolve HEAD during recovery")
		}
		if err := o.adapter.Add(scope.RootPath, "."); err != nil {
			return errors.WithContext(err, "stage during recovery")
		}
		_, err = o.adapter.Commit(scope.RootPath, "afsync: complete interrupted merge",
			author, []string{head, mergeHead})
		if err != nil && !errors.IsNothingToCommit(err) {
			return errors.WithContext(err, "complete merge")
		}
	}
	if err := fs.Remove(mergeHeadPath); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(err, "clear merge state")
	}
	return nil
}

// maybeGC fires garbage collection opportunistically. It's throttled to at
// most once per gcInterval and its failures are logged, never propagated.
// Callers hold the scope's lock; lastGC is guarded by it.
func (o *Orchestrator) maybeGC(scope *Scope) {
	now := o.clock.Now()
	if !scope.lastGC.IsZero() && now.Sub(scope.lastGC) < gcInterval {
		return
	}
	scope.lastGC = now

	go func() {
		if err := o.adapter.GC(scope.RootPath); err != nil {
			log.WithError(err).WithField("scope", scope.ID).Warn("Garbage collection failed")
		}
	}()
}

// Ahead approximates how many local commits the scope is ahead of its
// remote-tracking ref.
func (o *Orchestrator) Ahead(scopeID string) (int, error) {
	o.mu.Lock()
	scope, ok := o.scopes[scopeID]
	o.mu.Unlock()
	if !ok {
		return 0, errors.New("unknown scope: " + scopeID)
	}
	return o.adapter.AheadCount(scope.RootPath, "origin/"+scope.Branch)
}

// Flush pushes every active scope's pending auto-commit before shutdown.
// Failures are collected but never block the flush of sibling scopes.
func (o *Orchestrator) Flush(ctx context.Context) []error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.scopes))
	for id := range o.scopes {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := o.Sync(ctx, id); err != nil {
				log.WithError(err).WithField("scope", id).Warn("Flush failed")
				errCh <- errors.WithContext(err, "flush "+id)
			}
		}(id)
	}
	wg.Wait()
	close(errCh)

	var flushErrs []error
	for err := range errCh {
		flushErrs = append(flushErrs, err)
	}
	return flushErrs
}

// Shutdown flushes all scopes and stops their trigger loops.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, err := range o.Flush(ctx) {
		log.WithError(err).Warn("Pending changes may not have been pushed")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, scope := range o.scopes {
		close(scope.trigger)
		delete(o.scopes, id)
	}
}
