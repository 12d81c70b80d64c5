// Package distribution implements the read-only update channel: it polls a
// remote manifest for a published scope, compares versions, and fast-forwards
// the local copy with a shallow fetch and hard reset. It never commits local
// changes and deliberately lives outside the sync orchestrator's mutex.
package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

// pollInterval is how often the remote manifest is checked. It is independent
// of any status polling.
const pollInterval = 30 * time.Minute

// manifestFileName is the document published at the repository root.
const manifestFileName = "manifest.json"

// Manifest is the published descriptor for a distributed scope.
type Manifest struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// VersionStore persists the locally recorded version of a distributed scope.
type VersionStore interface {
	RecordedVersion(scopeID string) (string, error)
	SetRecordedVersion(scopeID, version string) error
}

// Notifier receives channel outcomes. The engine's event bus satisfies this
// through a thin adapter in the daemon wiring.
type Notifier interface {
	UpdateApplied(scopeID, version string)
	UpdateSkipped(scopeID, reason string)
}

// Channel polls one distributed scope.
type Channel struct {
	adapter  vcs.Adapter
	store    VersionStore
	notifier Notifier
	client   *http.Client
	clock    clockwork.Clock

	scopeID string
	root    string
	remote  string
	branch  string

	// Force installs the manifest version even when it is older than the
	// locally recorded one.
	Force bool

	syncing int32
	stop    chan struct{}
}

// Options configures a Channel.
type Options struct {
	Adapter  vcs.Adapter
	Store    VersionStore
	Notifier Notifier

	// HTTPClient fetches the manifest. nil uses http.DefaultClient.
	HTTPClient *http.Client
	Clock      clockwork.Clock

	ScopeID   string
	RootPath  string
	RemoteURL string
	Branch    string
}

// New returns a Channel that is not yet polling.
func New(opts Options) *Channel {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Channel{
		adapter:  opts.Adapter,
		store:    opts.Store,
		notifier: opts.Notifier,
		client:   opts.HTTPClient,
		clock:    opts.Clock,
		scopeID:  opts.ScopeID,
		root:     opts.RootPath,
		remote:   opts.RemoteURL,
		branch:   opts.Branch,
		stop:     make(chan struct{}),
	}
}

var githubRemoteRegexp = regexp.MustCompile(
	`^(?:https://|git@)github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ManifestURL derives the CDN-style manifest location from the remote URL and
// branch. GitHub remotes map onto the raw content host; anything else falls
// back to the conventional raw path on the remote itself.
func ManifestURL(remote, branch string) string {
	if match := githubRemoteRegexp.FindStringSubmatch(remote); match != nil {
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s",
			match[1], match[2], branch, manifestFileName)
	}
	return fmt.Sprintf("%s/raw/%s/%s",
		strings.TrimSuffix(strings.TrimSuffix(remote, "/"), ".git"),
		branch, manifestFileName)
}

// Start polls until Stop is called.
func (c *Channel) Start(ctx context.Context) {
	go func() {
		for {
			if err := c.Check(ctx); err != nil {
				log.WithError(err).WithField("scope", c.scopeID).
					Warn("Distribution check failed")
			}
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case <-c.clock.After(pollInterval):
			}
		}
	}()
}

// Stop ends polling. A check already in flight finishes on its own.
func (c *Channel) Stop() {
	close(c.stop)
}

// Check fetches the manifest once and applies the update decision. An attempt
// that overlaps a running one is dropped, not queued: only one is ever useful.
func (c *Channel) Check(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.syncing, 0, 1) {
		log.WithField("scope", c.scopeID).Debug("Update check already running; dropping")
		return nil
	}
	defer atomic.StoreInt32(&c.syncing, 0)

	manifest, err := c.fetchManifest(ctx)
	if err != nil {
		return errors.WithContext(err, "fetch manifest")
	}

	remote, err := goversion.NewVersion(manifest.Version)
	if err != nil {
		return errors.WithContext(err, "parse manifest version")
	}

	recorded, err := c.store.RecordedVersion(c.scopeID)
	if err != nil {
		return errors.WithContext(err, "read recorded version")
	}
	if recorded != "" && !c.Force {
		local, err := goversion.NewVersion(recorded)
		if err != nil {
			return errors.WithContext(err, "parse recorded version")
		}
		if remote.LessThan(local) {
			log.WithField("scope", c.scopeID).WithField("manifest", manifest.Version).
				WithField("recorded", recorded).Warn("Rejecting downgrade from manifest")
			c.notifier.UpdateSkipped(c.scopeID, "downgrade-rejected")
			return nil
		}
		if remote.Equal(local) {
			return nil
		}
	}

	if err := c.apply(ctx); err != nil {
		return errors.WithContext(err, "apply update "+manifest.Version)
	}
	if err := c.store.SetRecordedVersion(c.scopeID, manifest.Version); err != nil {
		return errors.WithContext(err, "record version")
	}
	c.notifier.UpdateApplied(c.scopeID, manifest.Version)
	log.WithField("scope", c.scopeID).WithField("version", manifest.Version).
		Info("Distributed scope updated")
	return nil
}

func (c *Channel) fetchManifest(ctx context.Context) (Manifest, error) {
	req, err := http.NewRequest("GET", ManifestURL(c.remote, c.branch), nil)
	if err != nil {
		return Manifest{}, err
	}
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return Manifest{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Manifest{}, errors.New("manifest request returned " + resp.Status)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// apply fast-forwards the local copy: shallow fetch then hard reset onto the
// remote branch head. No merge — this channel assumes no local edits.
func (c *Channel) apply(ctx context.Context) error {
	err := c.adapter.Fetch(ctx, c.root, vcs.FetchOptions{Branch: c.branch, Depth: 1})
	if err != nil {
		return err
	}
	return c.adapter.ResetHard(c.root, "origin/"+c.branch)
}

// Flush is a no-op by contract: the channel never holds local changes.
func (c *Channel) Flush() error { return nil }
