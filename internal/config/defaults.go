package config

import (
	"errors"
	"os"
)

// EnsureFile writes a config file with default values if none exists yet.
// It reports whether a file was created.
func EnsureFile() (bool, error) {
	if _, err := os.Stat(ConfigPath()); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	cfg := Default()
	cfg.Extensions.Enabled = []string{}
	cfg.Extensions.Disabled = []string{}
	cfg.Extensions.Installed = []string{}
	if err := Save(cfg); err != nil {
		return false, err
	}
	return true, nil
}
