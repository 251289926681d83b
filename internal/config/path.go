// Package config resolves and validates the run configuration.
package config

import (
	"os"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands ~ and environment variables in a file path.
// A path whose home directory cannot be determined is returned unexpanded.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return os.ExpandEnv(path)
}
