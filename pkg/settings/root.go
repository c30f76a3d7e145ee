package settings

import (
	"errors"
	"os"
	"path/filepath"
)

// RootEnvVar overrides project root discovery when set.
const RootEnvVar = "IMAGECHOOM_ROOT"

var ErrRootNotFound = errors.New("project root not found: no directory with workflows/ and presets/ markers")

// ResolveRoot locates the project root. The environment variable wins; failing
// that, the walk starts at the working directory and climbs until it finds a
// directory containing both workflows/ and presets/.
func ResolveRoot() (string, error) {
	if root := os.Getenv(RootEnvVar); root != "" {
		return filepath.Abs(root)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	return resolveRootFrom(dir)
}

func resolveRootFrom(dir string) (string, error) {
	for {
		if hasMarkers(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrRootNotFound
		}

		dir = parent
	}
}

func hasMarkers(dir string) bool {
	for _, marker := range []string{"workflows", "presets"} {
		info, err := os.Stat(filepath.Join(dir, marker))
		if err != nil || !info.IsDir() {
			return false
		}
	}

	return true
}
