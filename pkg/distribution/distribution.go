// Package distribution locates the code bundle that is shipped to other
// processes and hosts so they can continue a session.
//
// A Go program is its own bundle: the compiled binary registers its tasks and
// configurations at start-up and acts as the runner when started with the
// runner flags (see package runner).
package distribution

import (
	"fmt"
	"os"
	"path/filepath"
)

// Distribution provides the path of an executable bundle.
type Distribution interface {
	Path() (string, error)
}

type executable struct{}

// Executable returns the distribution of the running binary.
func Executable() Distribution { return executable{} }

func (executable) Path() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return path, nil
}

type file string

// File returns a distribution backed by a prebuilt bundle, e.g. a binary
// cross-compiled for the remote platform.
func File(path string) Distribution { return file(path) }

func (f file) Path() (string, error) {
	info, err := os.Stat(string(f))
	if err != nil {
		return "", fmt.Errorf("bundle not available: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("bundle %s is a directory", string(f))
	}
	return string(f), nil
}
