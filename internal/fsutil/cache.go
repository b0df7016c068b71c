package fsutil

import (
	"os"
	"path/filepath"
)

// sharedState is used when running inside a build workspace where many
// jobs share one state directory.
const sharedState = "/workspace/state"

// CacheFolder returns the shared cache folder for the given concern,
// creating it if needed.
func CacheFolder(name string) (string, error) {
	var dir string
	if info, err := os.Stat(sharedState); err == nil && info.IsDir() {
		dir = filepath.Join(sharedState, name)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".cache", "aptfetch", name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
