package script

import (
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultCheckPeriod and DefaultTimeLimit are the watchdog's defaults per
// §4.E.
const (
	DefaultCheckPeriod = 10_000
	DefaultTimeLimit   = 5 * time.Millisecond
)

// HookContext is the deadline/enabled pair the debug hook consults on
// every tick. A pointer to it is published into the registry slot so the
// hook callback — which the interpreter calls with no captured state — can
// recover it from the interpreter handle alone.
type HookContext struct {
	Deadline time.Time
	Enabled  bool
}

func (c *HookContext) start(limit time.Duration) {
	c.Enabled = true
	c.Deadline = time.Now().Add(limit)
}

func (c *HookContext) reset() {
	c.Enabled = false
	c.Deadline = time.Time{}
}

// IsTimedOut reports whether the context is enabled and its deadline has
// passed.
func (c *HookContext) IsTimedOut() bool {
	return c.Enabled && time.Now().After(c.Deadline)
}

// hookContextSlot is the single, process-wide registry slot shared by every
// Watchdog's HookContext. Because it is one package-level instance, two
// Watchdogs attached to the same interpreter contend for the very same
// slot — the mechanism §4.D/§4.E rely on for conflict detection.
var hookContextSlot = NewRegistrySlot[HookContext]()

// allocStateSlot publishes a Runtime's AllocState for the live memory
// sampling described in alloc.go. Unlike hookContextSlot this is not a
// contended resource: a Runtime publishes its own AllocState unconditionally,
// and the tick function only acts on it when a limit is configured.
var allocStateSlot = NewRegistrySlot[AllocState]()

// watchdogTick is the single hook function installed on every watchdog-
// guarded interpreter. It is a plain package-level function with no
// captured environment — a requirement for a callback a foreign
// interpreter invokes directly — and communicates only through the
// registry slots.
func watchdogTick(L *lua.LState) int {
	ctx := hookContextSlot.Get(L)
	if ctx == nil {
		L.RaiseError("Unable to get hook context")
		return 0
	}
	if ctx.IsTimedOut() {
		L.RaiseError("Script timed out")
		return 0
	}
	if alloc := allocStateSlot.Get(L); alloc != nil {
		if alloc.sampleProcessHeap() {
			L.RaiseError("memory limit reached: used=%d limit=%d",
				alloc.Used(), alloc.Limit())
		}
	}
	return 0
}

// Watchdog enforces a wall-clock budget on script execution by installing
// an instruction-count debug hook on an interpreter. See the state machine
// in §4.E.
type Watchdog struct {
	mu sync.Mutex

	interp      *lua.LState
	checkPeriod int
	hookFn      lua.LGFunction
	ctx         *HookContext
	armed       bool
}

// NewWatchdog builds a detached watchdog with the default check period and
// hook function.
func NewWatchdog() *Watchdog {
	return &Watchdog{checkPeriod: DefaultCheckPeriod, hookFn: watchdogTick}
}

// Attach binds the watchdog to an interpreter. Fails if already armed,
// unless force is set (which first detaches).
func (w *Watchdog) Attach(interp *lua.LState, force bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		if !force {
			return false
		}
		w.disarmLocked()
	}
	w.interp = interp
	return true
}

// Detach disarms (if armed) then clears the interpreter handle.
func (w *Watchdog) Detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmLocked()
	w.interp = nil
}

// ConfigureHook replaces the check period and hook function. Fails while
// armed.
func (w *Watchdog) ConfigureHook(checkPeriod int, hookFn lua.LGFunction) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed || checkPeriod <= 0 || hookFn == nil {
		return false
	}
	w.checkPeriod = checkPeriod
	w.hookFn = hookFn
	return true
}

// Armed reports whether the watchdog is currently armed.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// TimedOut reports the underlying context's timeout state.
func (w *Watchdog) TimedOut() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return false
	}
	return w.ctx.IsTimedOut()
}

// Arm installs the hook and starts the deadline. Fails unless attached,
// not already armed, the registry slot is empty, and the interpreter has
// no hook installed at all — the precondition that makes two watchdogs on
// one interpreter mutually exclusive.
func (w *Watchdog) Arm(limit time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.interp == nil || w.armed {
		return false
	}
	if !hookContextSlot.Empty(w.interp) {
		return false
	}
	if fn, _, _ := w.interp.GetHook(); fn != nil {
		return false
	}

	ctx := &HookContext{}
	ctx.start(limit)
	hookContextSlot.Set(w.interp, ctx)
	w.interp.SetHook(w.hookFn, lua.MaskCount, w.checkPeriod)
	w.ctx = ctx
	w.armed = true
	return true
}

// Rearm moves the deadline without touching the hook or the registry slot.
func (w *Watchdog) Rearm(limit time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || w.ctx == nil {
		return false
	}
	w.ctx.start(limit)
	return true
}

// Disarm disables the context and, if the watchdog was armed, removes the
// hook from the interpreter and clears the registry slot.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmLocked()
}

func (w *Watchdog) disarmLocked() {
	if w.ctx != nil {
		w.ctx.reset()
	}
	if w.armed {
		if w.interp != nil {
			w.interp.SetHook(nil, 0, 0)
			hookContextSlot.Remove(w.interp)
		}
		w.armed = false
	}
	w.ctx = nil
}

// GuardedScope is a move-only, scoped acquisition over a Watchdog. It arms
// on construction and disarms on Close (or on a move away in the original
// design; in Go, callers must not retain a GuardedScope beyond a single
// use — see SPEC_FULL.md's design-notes discussion of why a struct copy is
// inert rather than unsafe here).
type GuardedScope struct {
	watchdog *Watchdog
	enabled  bool
}

// NewGuardedScope arms watchdog for limit. If arming fails (e.g. the
// watchdog is already armed by someone else), the returned scope is
// disabled: a no-op that neither arms nor disarms.
func NewGuardedScope(w *Watchdog, limit time.Duration) *GuardedScope {
	s := &GuardedScope{watchdog: w}
	if w.Arm(limit) {
		s.enabled = true
	}
	return s
}

// Close disarms the watchdog if this scope is enabled. Safe to call more
// than once.
func (s *GuardedScope) Close() {
	if s == nil || !s.enabled {
		return
	}
	s.watchdog.Disarm()
	s.enabled = false
}

// Rearm re-issues disarm+arm with a new deadline, returning whether the new
// arm succeeded. A no-op (returns false) on a disabled scope.
func (s *GuardedScope) Rearm(limit time.Duration) bool {
	if s == nil || !s.enabled {
		return false
	}
	s.watchdog.Disarm()
	ok := s.watchdog.Arm(limit)
	if !ok {
		s.enabled = false
	}
	return ok
}

// TimedOut reports the watchdog's timeout state, but only while this scope
// is enabled.
func (s *GuardedScope) TimedOut() bool {
	if s == nil || !s.enabled {
		return false
	}
	return s.watchdog.TimedOut()
}

// Enabled reports whether this scope actually armed its watchdog.
func (s *GuardedScope) Enabled() bool {
	return s != nil && s.enabled
}
