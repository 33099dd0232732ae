package script

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestRegistrySlotSetGetRemove(t *testing.T) {
	type payload struct{ n int }
	slot := NewRegistrySlot[payload]()
	interp := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer interp.Close()

	if !slot.Empty(interp) {
		t.Fatal("fresh slot should be empty")
	}

	slot.Set(interp, &payload{n: 42})
	if slot.Empty(interp) {
		t.Fatal("slot should not be empty after Set")
	}
	got := slot.Get(interp)
	if got == nil || got.n != 42 {
		t.Fatalf("Get() = %+v, want {n:42}", got)
	}

	slot.Remove(interp)
	if !slot.Empty(interp) {
		t.Fatal("slot should be empty after Remove")
	}
	if slot.Get(interp) != nil {
		t.Fatal("Get() after Remove should be nil")
	}
}

func TestRegistrySlotIsolatedPerInterpreter(t *testing.T) {
	type payload struct{ n int }
	slot := NewRegistrySlot[payload]()
	a := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer a.Close()
	b := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer b.Close()

	slot.Set(a, &payload{n: 1})
	if !slot.Empty(b) {
		t.Fatal("slot for b should be unaffected by Set on a")
	}
}

func TestRegistrySlotSharedAcrossCallersDetectsConflict(t *testing.T) {
	// Two independent "watchdog" stand-ins sharing one package-level slot
	// must observe each other's occupancy — the mechanism the real
	// Watchdog.Arm relies on to refuse a second arm over the same
	// interpreter.
	type tag struct{}
	shared := NewRegistrySlot[tag]()
	interp := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer interp.Close()

	shared.Set(interp, &tag{})
	if shared.Empty(interp) {
		t.Fatal("first occupant should be visible")
	}
	// A second caller using the very same *RegistrySlot must see it occupied.
	if !func() bool { return !shared.Empty(interp) }() {
		t.Fatal("second caller sharing the slot should observe occupancy")
	}
}
