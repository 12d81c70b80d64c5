package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

// ScopeConfigFileName is the per-scope configuration file stored at the
// scope's root. It travels with the scope's repository, unlike the workspace
// config, and the conflict auto-resolution policy always keeps the local
// copy.
const ScopeConfigFileName = ".afscope.yaml"

// ScopeConfig is the configuration stored inside a scope's own tree.
type ScopeConfig struct {
	Version string `json:"version,omitempty"`

	ID     string `json:"id"`
	Branch string `json:"branch,omitempty"`
	Remote string `json:"remote,omitempty"`

	ReadOnly bool `json:"readOnly,omitempty"`
}

func (s ScopeConfig) getVersion() string {
	return s.Version
}

// ParseScopeConfig reads the scope config from the scope root.
func ParseScopeConfig(root string) (ScopeConfig, error) {
	path := filepath.Join(root, ScopeConfigFileName)
	config := ScopeConfig{Version: InitialWorkspaceConfigVersion}
	if err := parseConfig(path, &config, SupportedWorkspaceConfigVersion); err != nil {
		return ScopeConfig{}, err
	}
	return config, nil
}

// WriteScopeConfig writes the scope config into the scope root.
func WriteScopeConfig(root string, cfg ScopeConfig) error {
	cfg.Version = SupportedWorkspaceConfigVersion
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	path := filepath.Join(root, ScopeConfigFileName)
	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}
