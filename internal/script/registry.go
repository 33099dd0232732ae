package script

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// RegistrySlot is a typed, key-addressable slot modeling the interpreter's
// auxiliary "registry" mapping (§4.D): a mapping owned by the interpreter,
// keyed by a stable, opaque identity, used to hand per-instance state to
// hook callbacks that the interpreter calls back into with no other way to
// recover context.
//
// gopher-lua has no public lua_registry-style table keyed by light
// userdata the way the C API does. The portable re-architecture named in
// the design notes — "a designated typed key derived from a monotonic
// counter" — is realized here as a Go map keyed by the interpreter handle
// itself (*lua.LState, a value every bit as stable and process-unique as a
// light pointer). A RegistrySlot[T] is meant to be instantiated exactly
// once per Tag, as a package-level variable: every caller sharing that
// variable is, by construction, sharing the same "slot" — which is
// precisely the mechanism by which two Watchdogs attached to the same
// interpreter are made to contend for one resource (§4.D, §4.E).
type RegistrySlot[T any] struct {
	mu   sync.Mutex
	data map[*lua.LState]*T
}

// NewRegistrySlot creates an empty slot. Callers should keep exactly one
// instance per logical Tag.
func NewRegistrySlot[T any]() *RegistrySlot[T] {
	return &RegistrySlot[T]{data: make(map[*lua.LState]*T)}
}

// Set associates data with interp, keyed by this slot.
func (s *RegistrySlot[T]) Set(interp *lua.LState, data *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[interp] = data
}

// Get recovers the data associated with interp, or nil if none is set.
func (s *RegistrySlot[T]) Get(interp *lua.LState) *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[interp]
}

// Empty reports whether the slot holds nothing for interp.
func (s *RegistrySlot[T]) Empty(interp *lua.LState) bool {
	return s.Get(interp) == nil
}

// Remove clears the slot for interp.
func (s *RegistrySlot[T]) Remove(interp *lua.LState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, interp)
}
