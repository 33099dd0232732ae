// Package script implements the embeddable Lua sandbox core of the
// strataGGus engine: capability-restricted, memory-contained,
// wall-clock-contained execution of modder- and mission-supplied scripts.
//
// The embedded interpreter is github.com/yuin/gopher-lua, a pure-Go Lua 5.1
// VM. A Runtime owns one interpreter instance; one or more Sandboxes run
// scripts against isolated environments carved out of a shared Runtime.
//
// Architecture:
//   - LibSet / StdLib: a compact bitset over the standard-library
//     enumeration, used to track what has been physically loaded.
//   - PathGuard (StartsWith/StartsWithAny): containment checks for
//     script-file loading.
//   - AllocState / LimitedAlloc: byte-budget accounting for the runtime's
//     heap.
//   - RegistrySlot: a typed, key-addressable slot inside the interpreter
//     used to hand per-instance state to hook callbacks.
//   - Watchdog / GuardedScope: a wall-clock budget enforced via an
//     instruction-count debug hook.
//   - Runtime: owns the interpreter, its allocator state, and its
//     watchdog.
//   - Sandbox: a filtered, isolated execution environment layered on a
//     Runtime.
package script
