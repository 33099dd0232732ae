package script

import (
	"math"
	"runtime"
	"sync"
)

// AllocState is the accounting record consulted by the limited allocator on
// every allocation. Used counts the net bytes attributed to the runtime's
// heap; Limit == 0 means unbounded.
type AllocState struct {
	mu sync.Mutex

	used         uint64
	limit        uint64
	limitReached bool
	overflow     bool

	logger   Logger
	baseline uint64 // process heap sample taken at the first live sample (after construction or rebaseline)
}

// NewAllocState builds an AllocState with the given budget (0 = unbounded).
func NewAllocState(limit uint64, logger Logger) *AllocState {
	if logger == nil {
		logger = defaultLogger()
	}
	return &AllocState{limit: limit, logger: logger}
}

func (a *AllocState) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func (a *AllocState) Limit() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limit
}

func (a *AllocState) LimitReached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limitReached
}

func (a *AllocState) Overflow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overflow
}

func (a *AllocState) IsLimitEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limit > 0
}

// SetLimit replaces the budget. Passing 0 disables it.
func (a *AllocState) SetLimit(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limit = n
}

// ResetErrorFlags clears LimitReached and Overflow without touching Used,
// per §4.C.
func (a *AllocState) ResetErrorFlags() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limitReached = false
	a.overflow = false
}

// LimitedAlloc implements the §4.C contract directly: the signature of a
// typical embeddable-interpreter allocator, generalized to Go (no raw
// pointers — hadPrev stands in for "prevPtr != nil").
//
//   - !hadPrev  => prevSize is treated as zero (pure allocation).
//   - newSize == 0 => free: Used decrements by min(prevSize, Used); ok is
//     true (the caller proceeds to release the block).
//   - otherwise: usedBase = max(Used - prevSize, 0); if usedBase+newSize
//     would overflow, Overflow is set and ok is false without touching
//     Used; if a limit is configured and exceeded, LimitReached is set and
//     ok is false without touching Used; otherwise Used is updated to
//     usedBase+newSize and ok is true.
func (a *AllocState) LimitedAlloc(hadPrev bool, prevSize, newSize uint64) (ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !hadPrev {
		prevSize = 0
	}

	if newSize == 0 {
		if prevSize > a.used {
			a.used = 0
		} else {
			a.used -= prevSize
		}
		return true
	}

	usedBase := uint64(0)
	if a.used >= prevSize {
		usedBase = a.used - prevSize
	}

	if newSize > math.MaxUint64-usedBase {
		a.overflow = true
		a.logger.Error("script: allocator arithmetic overflow",
			"used", usedBase, "newSize", newSize, "maxSize", uint64(math.MaxUint64))
		return false
	}

	newUsed := usedBase + newSize
	if a.limit > 0 && newUsed > a.limit {
		a.limitReached = true
		a.logger.Error("script: allocator memory limit reached",
			"limit", a.limit, "used", a.used, "newSize", newSize)
		return false
	}

	a.used = newUsed
	return true
}

// sampleProcessHeap checks the growth of the Go process heap against the
// configured limit. gopher-lua, unlike a C Lua build,
// exposes no pluggable low-level allocator (there is no lua_Alloc
// equivalent): it is a pure-Go VM whose tables, strings, and closures are
// ordinary Go heap values managed by the garbage collector. To still give
// a live script a real, observable memory budget (rather than only a
// unit-testable accounting primitive), the timeout watchdog's own
// instruction-count hook periodically samples runtime.MemStats. The first
// sample becomes the baseline; each later sample stores the heap growth
// since that baseline as Used and sets LimitReached once it exceeds Limit.
// LimitedAlloc is not called on this path. This is necessarily a process-wide, not per-runtime, signal —
// documented and accepted as the closest faithful approximation available
// without forking gopher-lua. See DESIGN.md.
func (a *AllocState) sampleProcessHeap() (limitReached bool) {
	a.mu.Lock()
	limit := a.limit
	a.mu.Unlock()
	if limit == 0 {
		return false
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.baseline == 0 {
		a.baseline = ms.HeapAlloc
	}
	grown := uint64(0)
	if ms.HeapAlloc > a.baseline {
		grown = ms.HeapAlloc - a.baseline
	}
	if grown > a.limit {
		a.limitReached = true
		a.used = grown
		return true
	}
	a.used = grown
	return false
}

// rebaseline resets the live-sampling baseline and also zeroes Used and
// clears both error flags; Limit is left as it is. Sandbox.Reset calls it
// so that the next sample starts a fresh measurement.
func (a *AllocState) rebaseline() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseline = 0
	a.used = 0
	a.limitReached = false
	a.overflow = false
}
