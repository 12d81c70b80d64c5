package config

import (
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

const (
	// WorkspaceConfigPath is the default path to the afsync workspace config.
	WorkspaceConfigPath = "~/.afsync.yaml"

	// InitialWorkspaceConfigVersion is the first version of the workspace
	// config. Config files that do not specify a version will default to
	// this version.
	InitialWorkspaceConfigVersion = "v1alpha1"

	// SupportedWorkspaceConfigVersion is the version of the workspace config
	// supported by the current afsync binary.
	SupportedWorkspaceConfigVersion = "v1alpha1"
)

// Author is the commit identity recorded on automatic commits.
type Author struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Scope declares one synchronized sub-tree of the workspace. An empty Path
// means the scope governs the workspace root itself.
type Scope struct {
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Branch string `json:"branch,omitempty"`
	Remote string `json:"remote"`

	// ReadOnly marks the scope as served by the distribution channel: it is
	// updated from its remote but local edits are never committed or pushed.
	ReadOnly bool `json:"readOnly,omitempty"`
}

// Workspace is the user's global afsync configuration.
type Workspace struct {
	Version string `json:"version,omitempty"`

	// Root is the workspace directory all relative scope paths resolve
	// against.
	Root string `json:"root"`

	Author Author  `json:"author,omitempty"`
	Token  string  `json:"token,omitempty"`
	Scopes []Scope `json:"scopes,omitempty"`

	// RecordedVersions tracks the installed manifest version per read-only
	// scope, keyed by scope id.
	RecordedVersions map[string]string `json:"recordedVersions,omitempty"`
}

func (w Workspace) getVersion() string {
	return w.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseWorkspace attempts to parse the Workspace config stored in the
// default path.
func ParseWorkspace() (Workspace, error) {
	path, err := GetWorkspaceConfigPath()
	if err != nil {
		return Workspace{}, errors.WithContext(err, "expand config path")
	}

	config := Workspace{Version: InitialWorkspaceConfigVersion}
	if err := parseConfig(path, &config, SupportedWorkspaceConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Workspace{}, errors.NewFriendlyError("The afsync workspace "+
				"config file doesn't exist at %q. Please run `afsync clone` to "+
				"set up a workspace, or create the file by hand.", path)
		}
		return Workspace{}, errors.WithContext(err, "parse")
	}

	config.Root, err = homedirExpand(config.Root)
	if err != nil {
		return Workspace{}, errors.WithContext(err, "expand workspace root")
	}

	// Evaluate relative paths relative to the config path.
	if config.Root != "" && !filepath.IsAbs(config.Root) {
		config.Root = filepath.Join(filepath.Dir(path), config.Root)
	}
	return config, nil
}

// WriteWorkspace writes the given workspace config to disk.
func WriteWorkspace(cfg Workspace) error {
	cfg.Version = SupportedWorkspaceConfigVersion
	path, err := GetWorkspaceConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetWorkspaceConfigPath returns the path to the user's global afsync
// configuration. The path is expanded, so it can be directly passed to file
// operations.
func GetWorkspaceConfigPath() (string, error) {
	return homedirExpand(WorkspaceConfigPath)
}

// ScopeRoot resolves a scope's absolute root directory.
func (w Workspace) ScopeRoot(scope Scope) string {
	if scope.Path == "" {
		return w.Root
	}
	if filepath.IsAbs(scope.Path) {
		return scope.Path
	}
	return filepath.Join(w.Root, scope.Path)
}

// NestedScopePaths returns the roots of scopes nested under scope's root,
// relative to it, so a scan of the outer scope can exclude them.
func (w Workspace) NestedScopePaths(scope Scope) []string {
	base := w.ScopeRoot(scope)
	var nested []string
	for _, other := range w.Scopes {
		if other.ID == scope.ID {
			continue
		}
		rel, err := filepath.Rel(base, w.ScopeRoot(other))
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		nested = append(nested, filepath.ToSlash(rel))
	}
	return nested
}

// FindScope returns the scope with the given id.
func (w Workspace) FindScope(id string) (Scope, error) {
	for _, scope := range w.Scopes {
		if scope.ID == id {
			return scope, nil
		}
	}
	return Scope{}, errors.NotFoundError{What: "scope " + id}
}
