package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func TestSandboxMinimalPresetExposesBaseAndTable(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	res := sb.Run(`
		assert(type(pairs) == "function")
		assert(type(table.insert) == "function")
		assert(math == nil)
	`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
}

func TestSandboxBaseAllowlistHidesDangerousSymbols(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	res := sb.Run(`assert(rawset == nil and setmetatable == nil and load == nil)`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
}

func TestSandboxMathDeniesRandom(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetComplete)

	res := sb.Run(`assert(math.floor ~= nil); assert(math.random == nil and math.randomseed == nil)`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
}

func TestSandboxCorePresetIsEmpty(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetCore)
	if sb.LoadedLibs().Len() != 0 {
		t.Fatalf("PresetCore should load nothing, got %v", sb.LoadedLibs())
	}
}

func TestSandboxFrozenPresetRejectsRequire(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)
	if sb.Require(LibMath) {
		t.Fatal("Require should fail on a frozen (non-custom) preset")
	}
}

func TestSandboxCustomPresetAllowsRequire(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetCustom)
	if !sb.Require(LibBase) {
		t.Fatal("Require(LibBase) should succeed on PresetCustom")
	}
	if !sb.Require(LibMath) {
		t.Fatal("Require(LibMath) should succeed on PresetCustom")
	}
	if sb.Require(LibDebug) {
		t.Fatal("Require(LibDebug) should fail: no filtering rule exists for debug")
	}
}

func TestSandboxRunFileRejectsOutsideAllowedRoots(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	dir := t.TempDir()
	path := filepath.Join(dir, "script.lua")
	if err := os.WriteFile(path, []byte("return 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := sb.RunFile(path)
	if res.Valid() {
		t.Fatal("RunFile should fail: path is outside every allowed root")
	}
}

func TestSandboxRunFileAllowedRoot(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	dir := t.TempDir()
	if err := sb.AllowScriptPath(dir); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "script.lua")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := sb.RunFile(path)
	if !res.Valid() {
		t.Fatalf("RunFile should succeed: %v", res.Err())
	}
}

func TestSandboxRunFileRejectsBytecode(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	dir := t.TempDir()
	sb.AllowScriptPath(dir)
	path := filepath.Join(dir, "compiled.luac")
	if err := os.WriteFile(path, append([]byte(luaSignature), 0xAB, 0xCD), 0o644); err != nil {
		t.Fatal(err)
	}

	res := sb.RunFile(path)
	if res.Valid() {
		t.Fatal("RunFile should reject a precompiled bytecode chunk")
	}
}

func TestSandboxTimeoutAbortsRunawayScript(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)
	sb.SetTimeout(time.Millisecond)

	res := sb.Run(`local i = 0; while true do i = i + 1 end`)
	if res.Valid() {
		t.Fatal("runaway script should have been aborted by the watchdog")
	}
	if !strings.Contains(res.Err().Error(), "timed out") {
		t.Fatalf("error %q should mention timing out", res.Err().Error())
	}
}

func TestSandboxMemoryLimitAbortsGrowingScript(t *testing.T) {
	rt := NewRuntimeWithMemoryLimit(1)
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)
	sb.SetTimeout(2 * time.Second)

	res := sb.Run(`
		local t = {}
		for i = 1, 10000000 do t[i] = i end
	`)
	if res.Valid() {
		t.Fatal("a 1-byte memory limit should abort a table-growing script")
	}
}

func TestSandboxPrintSinkReceivesPrefixedOutput(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)
	var sink strings.Builder
	sb.SetPrintSink(&sink)

	res := sb.Run(`print("hello", "world")`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
	if !strings.Contains(sink.String(), "[lua sandbox]:> hello world") {
		t.Fatalf("print sink = %q, want prefixed hello world line", sink.String())
	}
}

func TestSandboxRunReturnsChunkValue(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	res := sb.Run(`local x = 123; return x*2`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
	n, ok := res.Value().(lua.LNumber)
	if !ok || float64(n) != 246 {
		t.Fatalf("Value() = %v, want 246", res.Value())
	}
}

func TestSandboxRunFileReturnsChunkValue(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	dir := t.TempDir()
	if err := sb.AllowScriptPath(dir); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "allowed.lua")
	if err := os.WriteFile(path, []byte(`return "foo"`), 0o644); err != nil {
		t.Fatal(err)
	}

	res := sb.RunFile(path)
	if !res.Valid() {
		t.Fatalf("RunFile should succeed: %v", res.Err())
	}
	s, ok := res.Value().(lua.LString)
	if !ok || string(s) != "foo" {
		t.Fatalf("Value() = %v, want %q", res.Value(), "foo")
	}
}

func TestSandboxDofileResolvesRelativeToScriptsRoot(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	dir := t.TempDir()
	if err := sb.AllowScriptPath(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "script.lua"), []byte(`return "foo"`), 0o644); err != nil {
		t.Fatal(err)
	}

	res := sb.Run(`
		local result = dofile("script.lua")
		assert(result == "foo")
	`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
}

func TestSandboxDofileResolvesMessyRelativePath(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	root := t.TempDir()
	scriptsDir := filepath.Join(root, "scripts")
	missionDir := filepath.Join(root, "missions")
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(missionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(scriptsDir, "script.lua"), []byte(`return "foo"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := sb.AllowScriptPath(root); err != nil {
		t.Fatal(err)
	}
	sb.scriptsRoot = missionDir

	res := sb.Run(`
		local result = dofile("../scripts/./script.lua")
		assert(result == "foo")
	`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
}

func TestSandboxRequireLoadsModuleAndReturnsItsValue(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetMinimal)

	dir := t.TempDir()
	modulesDir := filepath.Join(dir, "modules")
	if err := os.MkdirAll(modulesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	module := `
		local bar = 0
		return function(v) bar = v; return bar end
	`
	if err := os.WriteFile(filepath.Join(modulesDir, "module.lua"), []byte(module), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := sb.AllowScriptPath(dir); err != nil {
		t.Fatal(err)
	}

	res := sb.Run(`
		local barSetter = require("modules/module.lua")
		assert(type(barSetter) == "function")
		return barSetter(13)
	`)
	if !res.Valid() {
		t.Fatalf("script failed: %v", res.Err())
	}
	n, ok := res.Value().(lua.LNumber)
	if !ok || float64(n) != 13 {
		t.Fatalf("Value() = %v, want 13", res.Value())
	}
}

func TestSandboxResetClearsEnvironment(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	sb := NewSandbox(rt, PresetCustom)
	sb.Require(LibMath)
	if !sb.LoadedLibs().Contains(LibMath) {
		t.Fatal("expected math loaded before reset")
	}
	sb.Reset(false)
	if sb.LoadedLibs().Contains(LibMath) {
		t.Fatal("Reset should clear previously required libraries")
	}
}
