// Package testutil provides utilities for testing strataGGus in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates isolated test directories for each test: a scripts
// root, a data root, and a cache root, all under t.TempDir() so tests never
// touch the developer's real engine data directory. Returns the three
// created paths, in that order.
func SetupTestEnv(t *testing.T) (scriptsDir, dataDir, cacheDir string) {
	t.Helper()

	tmpDir := t.TempDir()
	scriptsDir = filepath.Join(tmpDir, "scripts")
	dataDir = filepath.Join(tmpDir, "data")
	cacheDir = filepath.Join(tmpDir, "cache")

	t.Setenv("STRATAGGUS_SCRIPTS_DIR", scriptsDir)
	t.Setenv("STRATAGGUS_DATA_DIR", dataDir)
	t.Setenv("STRATAGGUS_CACHE_DIR", cacheDir)
	t.Setenv("STRATAGGUS_TEST_MODE", "1")

	for _, dir := range []string{scriptsDir, dataDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return scriptsDir, dataDir, cacheDir
}

// WriteScript writes a Lua source file named name under dir and returns its
// absolute path.
func WriteScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("failed to write test script %s: %v", path, err)
	}
	return path
}
