package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const configHeader = `# dittoserve configuration file
#
# Every setting can be overridden with an environment variable named after
# its path, e.g. DITTOSERVE_SERVER_PORT=9000 or DITTOSERVE_CACHE_MAX_SIZE=64Mi.
# Sizes accept human-readable units (512, 64KiB, 2Mi, 1GB); durations use Go
# syntax (30s, 2m).

`

// ErrConfigExists is returned by InitConfig when the file already exists
// and force is not set.
var ErrConfigExists = errors.New("configuration file already exists")

// InitConfig writes a default configuration file to the default location
// and returns its path.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, GetDefaultConfig(), force)
}

// InitConfigToPath writes cfg with an explanatory header to path.
func InitConfigToPath(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
		}
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeConfigFile(path, append([]byte(configHeader), body...))
}
