package config

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/vcs"
)

const (
	// TokenEnvVar overrides every other credential source.
	TokenEnvVar = "AFSYNC_TOKEN"

	// tokenFilePath is the settings-file fallback for the credential store.
	tokenFilePath = "~/.afsync-token"
)

// Identity resolves the bearer token and the commit author from the
// environment, the workspace config, and the token-file fallback, in that
// order.
type Identity struct {
	workspace Workspace
}

// NewIdentity returns an Identity backed by the given workspace config.
func NewIdentity(workspace Workspace) *Identity {
	return &Identity{workspace: workspace}
}

// Token returns the bearer token, or a MissingTokenError when no source has
// one configured.
func (i *Identity) Token() (string, error) {
	if token := os.Getenv(TokenEnvVar); token != "" {
		return token, nil
	}
	if i.workspace.Token != "" {
		return i.workspace.Token, nil
	}

	path, err := homedirExpand(tokenFilePath)
	if err == nil {
		if raw, err := afero.ReadFile(fs, path); err == nil {
			if token := strings.TrimSpace(string(raw)); token != "" {
				return token, nil
			}
		}
	}
	return "", errors.MissingTokenError{}
}

// Author resolves the commit identity. The token is accepted for interface
// compatibility with credential services that derive the identity from it;
// the local implementation reads the workspace config with sane defaults.
func (i *Identity) Author(token string) (vcs.Author, error) {
	author := i.workspace.Author
	if author.Name == "" {
		author.Name = "afsync"
	}
	if author.Email == "" {
		author.Email = "afsync@localhost"
	}
	return vcs.Author{Name: author.Name, Email: author.Email}, nil
}

// SetToken persists the token to the settings-file fallback.
func SetToken(token string) error {
	path, err := homedirExpand(tokenFilePath)
	if err != nil {
		return errors.WithContext(err, "expand token path")
	}
	if err := afero.WriteFile(fs, path, []byte(token+"\n"), 0600); err != nil {
		return errors.WithContext(err, "write token")
	}
	return nil
}

// VersionStore persists the recorded distribution version per read-only
// scope inside the workspace config file.
type VersionStore struct {
	mu sync.Mutex
}

// RecordedVersion returns the installed manifest version for the scope, or
// "" when none was ever recorded.
func (s *VersionStore) RecordedVersion(scopeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := ParseWorkspace()
	if err != nil {
		return "", err
	}
	return cfg.RecordedVersions[scopeID], nil
}

// SetRecordedVersion records the installed manifest version for the scope.
func (s *VersionStore) SetRecordedVersion(scopeID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := ParseWorkspace()
	if err != nil {
		return err
	}
	if cfg.RecordedVersions == nil {
		cfg.RecordedVersions = map[string]string{}
	}
	cfg.RecordedVersions[scopeID] = version
	return WriteWorkspace(cfg)
}
