// Package testutil provides utilities for testing prebuilt in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates isolated directories and points every PREBUILT_*
// variable at them, so tests never touch a real cache or pick up a real
// token. It returns the temp root.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	t.Setenv("PREBUILT_CACHE_DIR", filepath.Join(tmpDir, "cache"))
	t.Setenv("PREBUILT_CONFIG", filepath.Join(tmpDir, "config", "prebuilt.lua"))
	t.Setenv("PREBUILT_NPM", "")

	// Tokens from the developer's shell must not leak into requests
	t.Setenv("PREBUILT_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")

	dirs := []string{
		filepath.Join(tmpDir, "cache"),
		filepath.Join(tmpDir, "config"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return tmpDir
}
