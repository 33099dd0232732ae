package script

import (
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
)

// stdLibOpeners maps a StdLib to the gopher-lua function that installs its
// real, unfiltered implementation into an interpreter's global table.
// LibBit32, LibFFI, LibJIT and LibUTF8 have no entry: gopher-lua is a pure
// Lua 5.1 VM and implements none of LuaJIT's extensions, so those libraries
// are unconditionally unavailable regardless of policy — consistent with
// their absence from libRules in rules.go.
var stdLibOpeners = map[StdLib]lua.LGFunction{
	LibBase:      lua.OpenBase,
	LibPackage:   lua.OpenPackage,
	LibTable:     lua.OpenTable,
	LibIO:        lua.OpenIo,
	LibOS:        lua.OpenOs,
	LibString:    lua.OpenString,
	LibMath:      lua.OpenMath,
	LibDebug:     lua.OpenDebug,
	LibCoroutine: lua.OpenCoroutine,
}

// Runtime owns one embedded interpreter instance together with its
// allocator accounting and timeout watchdog. A Runtime is not safe for
// concurrent use from multiple goroutines without external serialization,
// matching gopher-lua's own non-reentrant *lua.LState.
type Runtime struct {
	ID string

	interp   *lua.LState
	alloc    *AllocState
	watchdog *Watchdog
	logger   Logger
}

// NewRuntime builds a Runtime with no memory limit and a discarding logger.
func NewRuntime() *Runtime {
	return newRuntime(0, defaultLogger())
}

// NewRuntimeWithMemoryLimit builds a Runtime whose allocator accounting is
// bounded by limit bytes (0 = unbounded).
func NewRuntimeWithMemoryLimit(limit uint64) *Runtime {
	return newRuntime(limit, defaultLogger())
}

// NewRuntimeWithLogger builds a Runtime reporting allocator and hook
// diagnostics through logger instead of discarding them.
func NewRuntimeWithLogger(limit uint64, logger Logger) *Runtime {
	return newRuntime(limit, logger)
}

func newRuntime(limit uint64, logger Logger) *Runtime {
	if logger == nil {
		logger = defaultLogger()
	}
	interp := lua.NewState(lua.Options{SkipOpenLibs: true})
	alloc := NewAllocState(limit, logger)
	allocStateSlot.Set(interp, alloc)

	return &Runtime{
		ID:       uuid.NewString(),
		interp:   interp,
		alloc:    alloc,
		watchdog: NewWatchdog(),
		logger:   logger,
	}
}

// Interpreter exposes the underlying *lua.LState for callers (notably
// Sandbox) building directly on it.
func (r *Runtime) Interpreter() *lua.LState { return r.interp }

// AllocState returns the runtime's allocator accounting record.
func (r *Runtime) AllocState() *AllocState { return r.alloc }

// Watchdog returns the runtime's single timeout watchdog.
func (r *Runtime) Watchdog() *Watchdog { return r.watchdog }

// SetMemoryLimit replaces the allocator budget (0 = unbounded).
func (r *Runtime) SetMemoryLimit(n uint64) { r.alloc.SetLimit(n) }

// OpenLibrary loads lib's real implementation into the raw interpreter's
// global table, unfiltered. Sandboxes consult this before building a
// filtered copy (§4.G); Runtime itself applies no policy and has no notion
// of presets.
func (r *Runtime) OpenLibrary(lib StdLib) bool {
	opener, ok := stdLibOpeners[lib]
	if !ok {
		return false
	}
	opener(r.interp)
	return true
}

// MakeTimeoutGuardedScope attaches the runtime's watchdog to its
// interpreter (a no-op if already attached) and arms it for limit (or
// DefaultTimeLimit if limit is zero). The returned scope must be closed,
// directly or via defer, once the guarded call returns.
func (r *Runtime) MakeTimeoutGuardedScope(limit time.Duration) *GuardedScope {
	if limit <= 0 {
		limit = DefaultTimeLimit
	}
	r.watchdog.Attach(r.interp, false)
	return NewGuardedScope(r.watchdog, limit)
}

// Reset tears down the interpreter and builds a fresh one. The configured
// memory limit survives the reset; the accumulated Used figure does not —
// it returns to zero, matching a freshly constructed Runtime.
func (r *Runtime) Reset() {
	limit := r.alloc.Limit()
	logger := r.logger

	r.watchdog.Detach()
	allocStateSlot.Remove(r.interp)
	r.interp.Close()

	r.interp = lua.NewState(lua.Options{SkipOpenLibs: true})
	r.alloc = NewAllocState(limit, logger)
	allocStateSlot.Set(r.interp, r.alloc)
	r.watchdog = NewWatchdog()
}

// Close releases the underlying interpreter. The Runtime must not be used
// afterwards.
func (r *Runtime) Close() {
	r.watchdog.Detach()
	allocStateSlot.Remove(r.interp)
	r.interp.Close()
}
