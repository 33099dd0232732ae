// Package enginehost detects the characteristics of the machine running
// strataGGus: OS, architecture, and total physical memory. The engine CLI
// uses this once at startup to log its environment and to pick a sane
// default script memory budget, rather than having operators hand-tune a
// byte count blind.
//
// Adapted from the teacher's internal/platform package: the OS/arch
// detection survives, but the Linux-distro-family classification
// (Debian/RHEL/Fedora/SUSE/Arch/Alpine/Gentoo) is dropped entirely — a
// script sandbox has no per-distro behavior to gate, unlike a dotfile
// manager choosing package-manager commands.
package enginehost

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
)

// Info describes the host the engine is running on.
type Info struct {
	OS          string // "linux", "darwin", "windows"
	Arch        string // runtime.GOARCH, unmodified
	TotalMemory uint64 // bytes of total physical RAM
}

// Detector is the interface for host detection, so callers can substitute
// a fixed Info in tests instead of querying the real machine.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// RealDetector queries the actual host via the runtime package and
// gopsutil.
type RealDetector struct{}

// NewDetector returns the real, non-mocked Detector.
func NewDetector() Detector { return &RealDetector{} }

// Detect reports the current OS, architecture, and total physical memory.
// A failure to read memory statistics is not fatal: TotalMemory is left at
// zero and the error is returned wrapped, so a caller that only cares about
// OS/Arch can ignore it.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("enginehost: reading host memory: %w", err)
	}
	info.TotalMemory = vm.Total
	return info, nil
}

// DefaultScriptMemoryLimit returns a conservative default byte budget for a
// single script sandbox's AllocState: a small fraction of total host
// memory, so a host that forgets to configure memory_limit_bytes still
// gets real containment instead of an unbounded sandbox. Returns 0
// (unbounded) if TotalMemory is unknown.
func (i *Info) DefaultScriptMemoryLimit() uint64 {
	const fraction = 64 // 1/64th of total host RAM
	if i.TotalMemory == 0 {
		return 0
	}
	limit := i.TotalMemory / fraction
	const floor = 8 * 1024 * 1024 // never offer less than 8 MiB
	if limit < floor {
		return floor
	}
	return limit
}

func (i *Info) IsLinux() bool   { return i.OS == "linux" }
func (i *Info) IsMacOS() bool   { return i.OS == "darwin" }
func (i *Info) IsWindows() bool { return i.OS == "windows" }
