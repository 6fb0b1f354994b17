package safety

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PermissionsFile is the on-disk, project-local extension to
// TrustedCommands: a project can widen the gate's always-trusted allowlist
// without recompiling.
type PermissionsFile struct {
	TrustedCommands []string `yaml:"trusted_commands"`
}

// LoadTrustedCommands reads <cwd>/.turnengine/permissions.yaml, if present,
// and merges its trusted_commands list into TrustedCommands. A missing file
// is not an error; every project works with just the built-in allowlist.
func LoadTrustedCommands(cwd string) error {
	path := filepath.Join(cwd, ".turnengine", "permissions.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read permissions.yaml: %w", err)
	}

	var pf PermissionsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse permissions.yaml: %w", err)
	}
	for _, name := range pf.TrustedCommands {
		TrustedCommands[name] = true
	}
	return nil
}
