package script

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	stdruntime "runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
)

// luaSignature is the first four bytes of a precompiled Lua chunk. A script
// file starting with it is bytecode, and runFile/dofile/loadfile refuse it
// unconditionally: only source text is permitted through the sandbox's
// file-loading paths.
const luaSignature = "\x1bLua"

func isBytecode(data []byte) bool {
	return len(data) >= len(luaSignature) && string(data[:len(luaSignature)]) == luaSignature
}

// Result mirrors a protected call's outcome: on success it carries every
// value the executed chunk returned, the Go analogue of
// sol::protected_function_result's templated get<T>().
type Result struct {
	err    error
	values []lua.LValue
}

// Valid reports whether the call completed without error.
func (r *Result) Valid() bool { return r.err == nil }

// Err returns the failure, or nil on success.
func (r *Result) Err() error { return r.err }

// Values returns every value the chunk returned, in call order. Empty on
// failure, or when the chunk returned nothing.
func (r *Result) Values() []lua.LValue { return r.values }

// Value returns the chunk's first returned value, or lua.LNil if it
// returned nothing or the call failed.
func (r *Result) Value() lua.LValue {
	if len(r.values) == 0 {
		return lua.LNil
	}
	return r.values[0]
}

// Sandbox is an isolated Lua global environment layered over a Runtime's
// interpreter: a table of filtered standard-library copies plus safe
// dofile/loadfile/require/print replacements, bound to running code through
// gopher-lua's per-closure Env field rather than by mutating the
// interpreter's real _G.
//
// Sandbox holds a plain, non-owning *Runtime: the host must keep the
// Runtime alive for as long as any Sandbox built over it is in use.
type Sandbox struct {
	ID string

	runtime      *Runtime
	env          *lua.LTable
	preset       Preset
	loadedLibs   LibSet
	scriptsRoot  string
	allowedRoots []string
	printSink    io.Writer
	timeout      time.Duration
	logger       Logger
	signatures   *signatureRequirement
}

// NewSandbox builds a sandbox over rt, loading preset's default libraries
// (if any) into a fresh, filtered environment table.
func NewSandbox(rt *Runtime, preset Preset) *Sandbox {
	return newSandbox(rt, preset, defaultLogger())
}

// NewSandboxWithLogger is NewSandbox with an explicit diagnostics logger.
func NewSandboxWithLogger(rt *Runtime, preset Preset, logger Logger) *Sandbox {
	return newSandbox(rt, preset, logger)
}

func newSandbox(rt *Runtime, preset Preset, logger Logger) *Sandbox {
	if logger == nil {
		logger = defaultLogger()
	}
	s := &Sandbox{
		ID:        uuid.NewString(),
		runtime:   rt,
		preset:    preset,
		printSink: os.Stdout,
		logger:    logger,
	}
	s.rebuildEnv()
	return s
}

// rebuildEnv constructs a fresh environment table, self-referential under
// "_G" per the usual Lua sandboxing idiom, installs the safe print/file
// functions, and loads the preset's default libraries.
func (s *Sandbox) rebuildEnv() {
	interp := s.runtime.Interpreter()
	s.env = interp.NewTable()
	s.env.RawSetString("_G", s.env)
	s.loadedLibs = 0
	s.installSafePrint()
	s.installSafeLoaders()
	for _, lib := range s.preset.defaultLibs() {
		s.loadLibUnchecked(lib)
	}
}

// Env exposes the sandbox's environment table, e.g. for a host binding
// additional engine functions into it before running a script.
func (s *Sandbox) Env() *lua.LTable { return s.env }

// Preset reports the sandbox's fixed library preset.
func (s *Sandbox) Preset() Preset { return s.preset }

// LoadedLibs reports the set of standard libraries currently loaded into
// the environment.
func (s *Sandbox) LoadedLibs() LibSet { return s.loadedLibs }

// SetPrintSink redirects the sandboxed print() function's output.
func (s *Sandbox) SetPrintSink(w io.Writer) { s.printSink = w }

// SetTimeout sets the wall-clock budget applied to every Run/RunFile call
// that does not already execute inside a caller-provided GuardedScope. Zero
// means DefaultTimeLimit.
func (s *Sandbox) SetTimeout(d time.Duration) { s.timeout = d }

// AllowScriptPath adds root (normalized to an absolute, lexically clean
// path) to the set of roots runFile/dofile/loadfile/require may read from.
// The first root added also becomes the sandbox's scripts root.
func (s *Sandbox) AllowScriptPath(root string) error {
	abs, err := normalizeAbs(root)
	if err != nil {
		return fmt.Errorf("script: allow path %q: %w", root, err)
	}
	s.allowedRoots = append(s.allowedRoots, abs)
	if s.scriptsRoot == "" {
		s.scriptsRoot = abs
	}
	return nil
}

// ScriptsRoot returns the first root registered via AllowScriptPath, or ""
// if none has been.
func (s *Sandbox) ScriptsRoot() string { return s.scriptsRoot }

// resolveScriptPath normalizes a path given to runFile/dofile/loadfile: a
// relative path is resolved against the sandbox's scripts root before
// normalization, so a script's own dofile("script.lua") or
// dofile("../scripts/./script.lua") resolves the way it would from the
// script's own directory rather than from the process's working directory.
// A path that is already absolute, or a sandbox with no scripts root, is
// normalized as given.
func (s *Sandbox) resolveScriptPath(path string) (string, error) {
	if !filepath.IsAbs(path) && s.scriptsRoot != "" {
		path = filepath.Join(s.scriptsRoot, path)
	}
	return normalizeAbs(path)
}

// Require loads lib into the sandbox's environment, applying its filtering
// rule. It fails (returns false) when the sandbox's preset is frozen
// (everything but PresetCustom), when no filtering rule exists for lib, or
// when the underlying interpreter has no opener for lib at all.
func (s *Sandbox) Require(lib StdLib) bool {
	if s.preset.frozen() {
		return false
	}
	return s.loadLibUnchecked(lib)
}

func (s *Sandbox) loadLibUnchecked(lib StdLib) bool {
	if s.loadedLibs.Contains(lib) {
		return true
	}
	if _, ok := ruleFor(lib); !ok {
		return false
	}
	if !s.runtime.OpenLibrary(lib) {
		return false
	}
	s.copyFiltered(lib)
	s.loadedLibs = s.loadedLibs.Insert(lib)
	return true
}

// copyFiltered copies lib's allowed symbols from the raw interpreter's real
// global table into the sandbox environment, per lib's LibRule. Base's
// symbols land directly on the environment table (there is no "base"
// sub-table in real Lua either); every other library lands under its own
// name, matching the real interpreter's layout.
func (s *Sandbox) copyFiltered(lib StdLib) {
	rule, ok := ruleFor(lib)
	if !ok {
		return
	}
	interp := s.runtime.Interpreter()

	if lib == LibBase {
		globals, ok := interp.Get(lua.GlobalsIndex).(*lua.LTable)
		if !ok {
			return
		}
		copySymbols(globals, s.env, rule)
		return
	}

	src, ok := interp.GetGlobal(lib.Name()).(*lua.LTable)
	if !ok {
		return
	}
	dst := interp.NewTable()
	copySymbols(src, dst, rule)
	s.env.RawSetString(lib.Name(), dst)
}

func copySymbols(src, dst *lua.LTable, rule LibRule) {
	if rule.AllowAll {
		denied := make(map[string]bool, len(rule.Denied))
		for _, n := range rule.Denied {
			denied[n] = true
		}
		src.ForEach(func(k, v lua.LValue) {
			name, ok := k.(lua.LString)
			if !ok || denied[string(name)] {
				return
			}
			dst.RawSetString(string(name), v)
		})
		return
	}
	for _, name := range rule.Allowed {
		if v := src.RawGetString(name); v != lua.LNil {
			dst.RawSetString(name, v)
		}
	}
}

// installSafePrint replaces print() with one that prefixes every line and
// writes to the sandbox's print sink instead of the process's real stdout.
func (s *Sandbox) installSafePrint() {
	interp := s.runtime.Interpreter()
	s.env.RawSetString("print", interp.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		fmt.Fprintln(s.printSink, "[lua sandbox]:> "+strings.Join(parts, " "))
		return 0
	}))
}

// installSafeLoaders installs dofile/loadfile/require replacements that
// consult the path guard and refuse precompiled bytecode, in place of the
// real functions (which reach the filesystem directly and would bypass
// every containment this package provides).
func (s *Sandbox) installSafeLoaders() {
	interp := s.runtime.Interpreter()
	s.env.RawSetString("dofile", interp.NewFunction(s.luaDofile))
	s.env.RawSetString("loadfile", interp.NewFunction(s.luaLoadfile))
	s.env.RawSetString("require", interp.NewFunction(s.luaRequire))
}

func (s *Sandbox) luaDofile(L *lua.LState) int {
	path := L.CheckString(1)
	result := s.RunFile(path)
	if !result.Valid() {
		L.RaiseError("%s", result.Err().Error())
		return 0
	}
	for _, v := range result.Values() {
		L.Push(v)
	}
	return len(result.Values())
}

func (s *Sandbox) luaLoadfile(L *lua.LState) int {
	path := L.CheckString(1)
	abs, err := s.resolveScriptPath(path)
	if err != nil || !StartsWithAny(abs, s.allowedRoots) {
		L.Push(lua.LNil)
		L.Push(lua.LString("file policy violation: " + path))
		return 2
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString("file policy violation: " + path))
		return 2
	}
	if isBytecode(data) {
		L.Push(lua.LNil)
		L.Push(lua.LString("file policy violation: precompiled bytecode is not permitted: " + path))
		return 2
	}
	fn, err := L.LoadString(string(data))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	fn.Env = s.env
	L.Push(fn)
	return 1
}

func (s *Sandbox) luaRequire(L *lua.LState) int {
	name := L.CheckString(1)
	if lib, ok := StdLibByName(name); ok {
		if s.Require(lib) {
			L.Push(lua.LTrue)
			return 1
		}
		L.RaiseError("module %q denied", name)
		return 0
	}
	for _, root := range s.allowedRoots {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		result := s.RunFile(candidate)
		if !result.Valid() {
			L.RaiseError("%s", result.Err().Error())
			return 0
		}
		values := result.Values()
		if len(values) == 0 {
			L.Push(lua.LTrue)
			return 1
		}
		for _, v := range values {
			L.Push(v)
		}
		return len(values)
	}
	L.RaiseError("module %q not found", name)
	return 0
}

// Run compiles and executes source against the sandbox's environment,
// under a timeout-guarded scope.
func (s *Sandbox) Run(source string) *Result {
	return s.runChunk(source)
}

// RunFile loads path, refusing it unless it resolves under one of the
// sandbox's allowed roots and is not a precompiled bytecode chunk, then
// runs it exactly as Run would.
func (s *Sandbox) RunFile(path string) *Result {
	abs, err := s.resolveScriptPath(path)
	if err != nil {
		return &Result{err: &PolicyError{Op: "runFile", Path: path, Reason: err.Error()}}
	}
	if !StartsWithAny(abs, s.allowedRoots) {
		return &Result{err: &PolicyError{Op: "runFile", Path: path, Reason: "outside every allowed root"}}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return &Result{err: &PolicyError{Op: "runFile", Path: path, Reason: err.Error()}}
	}
	if isBytecode(data) {
		return &Result{err: &PolicyError{Op: "runFile", Path: path, Reason: "precompiled bytecode is not permitted"}}
	}
	if err := s.verifySignature(abs, data); err != nil {
		return &Result{err: &PolicyError{Op: "runFile", Path: path, Reason: err.Error()}}
	}
	return s.runChunk(string(data))
}

func (s *Sandbox) runChunk(source string) *Result {
	interp := s.runtime.Interpreter()
	fn, err := interp.LoadString(source)
	if err != nil {
		return &Result{err: err}
	}
	fn.Env = s.env

	scope := s.runtime.MakeTimeoutGuardedScope(s.timeout)
	defer scope.Close()

	base := interp.GetTop()
	interp.Push(fn)
	callErr := interp.PCall(0, lua.MultRet, nil)
	if callErr != nil {
		if scope.TimedOut() {
			return &Result{err: fmt.Errorf("%w: %s", ErrTimedOut, callErr.Error())}
		}
		if s.runtime.AllocState().LimitReached() {
			return &Result{err: fmt.Errorf("%w: %s", ErrMemoryLimit, callErr.Error())}
		}
		return &Result{err: callErr}
	}

	nret := interp.GetTop() - base
	values := make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		values[i] = interp.Get(base + 1 + i)
	}
	interp.SetTop(base)
	return &Result{values: values}
}

// GuardedScope arms the sandbox's runtime watchdog for limit (or
// DefaultTimeLimit if zero), for a host that wants one timeout spanning
// several Run/RunFile calls rather than the default per-call scope.
func (s *Sandbox) GuardedScope(limit time.Duration) *GuardedScope {
	return s.runtime.MakeTimeoutGuardedScope(limit)
}

// Reset discards the sandbox's environment table and rebuilds it from
// scratch, reloading the preset's default libraries. If collectGC is true,
// a garbage collection cycle is requested afterwards — useful after
// running an untrusted script that may have built large, now-unreferenced
// tables.
func (s *Sandbox) Reset(collectGC bool) {
	s.rebuildEnv()
	s.runtime.AllocState().rebaseline()
	if collectGC {
		stdruntime.GC()
	}
}
