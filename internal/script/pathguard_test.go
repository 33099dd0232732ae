package script

import (
	"path/filepath"
	"testing"
)

func TestStartsWithBasic(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "scripts", "mission.lua")
	if !StartsWith(inside, root) {
		t.Errorf("StartsWith(%q, %q) = false, want true", inside, root)
	}
}

func TestStartsWithRejectsSiblingWithSharedPrefix(t *testing.T) {
	root := t.TempDir()
	sibling := root + "-evil"
	if StartsWith(filepath.Join(sibling, "x.lua"), root) {
		t.Error("StartsWith matched a sibling directory sharing a string prefix with root")
	}
}

func TestStartsWithRejectsDotDotEscape(t *testing.T) {
	root := filepath.Join(t.TempDir(), "scripts")
	escaped := filepath.Join(root, "..", "secrets", "x.lua")
	if StartsWith(escaped, root) {
		t.Error("StartsWith allowed a path escaping root via ..")
	}
}

func TestStartsWithExactMatch(t *testing.T) {
	root := t.TempDir()
	if !StartsWith(root, root) {
		t.Error("StartsWith(root, root) = false, want true")
	}
}

func TestStartsWithEmptyRoot(t *testing.T) {
	if StartsWith("/tmp/x.lua", "") {
		t.Error("StartsWith with empty root = true, want false")
	}
}

func TestStartsWithAnyFirstMatchAndEmpty(t *testing.T) {
	if StartsWithAny("/tmp/x.lua", nil) {
		t.Error("StartsWithAny with no roots = true, want false")
	}
	r1, r2 := t.TempDir(), t.TempDir()
	p := filepath.Join(r2, "a.lua")
	if !StartsWithAny(p, []string{r1, r2}) {
		t.Error("StartsWithAny should match the second root")
	}
}
