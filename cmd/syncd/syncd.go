// Package syncd implements `afsync syncd`: the long-running daemon that
// watches every configured scope, runs the background sync cycles, serves the
// status cache, and polls the distribution channel for read-only scopes.
package syncd

import (
	"context"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/RahmaniErfan/abstract-folder-sub001/cmd/util"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/config"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/distribution"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/engine"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/fswatch"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/sandbox"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/statuscache"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

// syncDebounce is how long after the last file change a sync cycle is
// scheduled. It is longer than the status cache's own debounce so the status
// line settles before a commit starts.
const syncDebounce = 5 * time.Second

// New creates a new `syncd` command.
func New() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "syncd",
		Short: "Run the background sync daemon for every configured scope.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(interval); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute,
		"How often to sync each scope regardless of file changes.")
	return cmd
}

// busNotifier bridges distribution outcomes onto the engine's event bus.
type busNotifier struct {
	bus *engine.Bus
}

func (n busNotifier) UpdateApplied(scopeID, version string) {
	n.bus.Publish(engine.Event{
		Scope: scopeID, Kind: engine.EventUpdateAvailable, Detail: version,
	})
}

func (n busNotifier) UpdateSkipped(scopeID, reason string) {
	n.bus.Publish(engine.Event{
		Scope: scopeID, Kind: engine.EventUpdateSkipped, Detail: reason,
	})
}

func run(interval time.Duration) error {
	workspace, err := config.ParseWorkspace()
	if err != nil {
		return err
	}
	if len(workspace.Scopes) == 0 {
		return errors.NewFriendlyError("No scopes are configured in %s. "+
			"Run `afsync clone` to add one.", config.WorkspaceConfigPath)
	}

	// Pulled content is untrusted, so the embedded adapter's worktree writes
	// go through the sandbox overlay.
	adapter := vcs.Detect(vcs.EmbeddedOptions{
		Worktree: func(root string) billy.Filesystem {
			return sandbox.New(osfs.New(root))
		},
	})

	identity := config.NewIdentity(workspace)
	orch := engine.New(engine.Options{
		Adapter:  adapter,
		Identity: identity,
		// Merge UIs attach through the Resolver seam; the headless daemon
		// leaves non-config conflicts unresolved and reports them as events.
	})

	cache := statuscache.New(statuscache.Options{
		Fetch: func(scopeID string) (vcs.StatusMatrix, error) {
			scope, err := workspace.FindScope(scopeID)
			if err != nil {
				return nil, err
			}
			return adapter.StatusMatrix(
				workspace.ScopeRoot(scope), workspace.NestedScopePaths(scope))
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var channels []*distribution.Channel
	var synced []config.Scope
	for _, scope := range workspace.Scopes {
		root := workspace.ScopeRoot(scope)
		branch := scope.Branch
		if branch == "" {
			if branch, err = adapter.CurrentBranch(root); err != nil {
				return errors.WithContext(err, "resolve branch of "+scope.ID)
			}
		}

		if scope.ReadOnly {
			channel := distribution.New(distribution.Options{
				Adapter:   adapter,
				Store:     &config.VersionStore{},
				Notifier:  busNotifier{bus: orch.Bus()},
				ScopeID:   scope.ID,
				RootPath:  root,
				RemoteURL: scope.Remote,
				Branch:    branch,
			})
			channel.Start(ctx)
			channels = append(channels, channel)
			log.WithField("scope", scope.ID).Info("Read-only scope on the distribution channel")
			continue
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
		cache.Register(scope.ID, scope.Path)
		synced = append(synced, scope)

		go logEvents(orch.Bus().Subscribe(scope.ID), scope.ID)
		if err := watchScope(orch, cache, scope, root); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			for _, scope := range synced {
				orch.Schedule(scope.ID)
			}
		}
	}()

	// First cycle right away so a long interval doesn't delay startup sync.
	for _, scope := range synced {
		orch.Schedule(scope.ID)
	}

	log.WithField("scopes", len(workspace.Scopes)).Info("afsync daemon running")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("Shutting down; flushing pending changes")
	for _, channel := range channels {
		channel.Stop()
	}
	orch.Shutdown(context.Background())
	return nil
}

// watchScope streams file changes into the status cache and schedules a
// debounced sync cycle after each quiet period.
func watchScope(orch *engine.Orchestrator, cache *statuscache.Cache,
	scope config.Scope, root string) error {

	watcher, err := fswatch.Watch(root)
	if err != nil {
		return errors.WithContext(err, "watch "+scope.ID)
	}

	go func() {
		timer := time.NewTimer(time.Hour)
		if !timer.Stop() {
			<-timer.C
		}
		for {
			select {
			case rel, ok := <-watcher.Paths:
				if !ok {
					return
				}
				cache.FileChanged(path.Join(scope.Path, rel))
				timer.Reset(syncDebounce)
			case <-timer.C:
				orch.Schedule(scope.ID)
			}
		}
	}()
	return nil
}

func logEvents(events <-chan engine.Event, scopeID string) {
	for event := range events {
		entry := log.WithField("scope", scopeID).WithField("detail", event.Detail)
		switch event.Kind {
		case engine.EventError:
			entry.Warn("Sync reported an error")
		default:
			entry.Info(string(event.Kind))
		}
	}
}
