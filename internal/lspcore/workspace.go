package lspcore

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WorkspaceConfig is the optional fuse-workspace.yaml the LSP reads from
// the workspace root. This is the one knob set the server understands.
type WorkspaceConfig struct {
	// Roots lists additional entry files to analyze alongside the open
	// document's own module, for multi-root projects.
	Roots []string `yaml:"roots"`
	// Strict forces capability validation even for modules that never
	// declare `requires`.
	Strict bool `yaml:"strict"`
	// FormatOnSave lets a client-agnostic editor setup opt out of the
	// formatter without a client-side toggle.
	FormatOnSave *bool `yaml:"formatOnSave"`
}

const workspaceFile = "fuse-workspace.yaml"

// LoadWorkspaceConfig reads dir/fuse-workspace.yaml; a missing file yields
// the zero config.
func LoadWorkspaceConfig(dir string) (*WorkspaceConfig, error) {
	b, err := os.ReadFile(filepath.Join(dir, workspaceFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &WorkspaceConfig{}, nil
		}
		return nil, err
	}
	var cfg WorkspaceConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
