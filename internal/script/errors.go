package script

import "errors"

// Sentinel errors surfaced to the host for "local" failures (§7): denied
// requests, file-policy violations and script-execution failures that a
// caller may want to discriminate with errors.Is.
var (
	// ErrDenied marks a request the sandbox refused without executing
	// anything. Sandbox.Require and Watchdog.Arm report their refusals
	// as a plain false return and do not return this error.
	ErrDenied = errors.New("script: request denied")

	// ErrTimedOut marks a script aborted by the timeout watchdog. The
	// interpreter-level error message always also contains the literal
	// substring "Script timed out" per §4.E.
	ErrTimedOut = errors.New("script: timed out")

	// ErrMemoryLimit marks a script aborted because the runtime's
	// allocator budget was exhausted.
	ErrMemoryLimit = errors.New("script: memory limit reached")

	// ErrFilePolicy marks a runFile call rejected by the path guard:
	// missing file, path outside every allowed root, or a precompiled
	// bytecode chunk.
	ErrFilePolicy = errors.New("script: file policy violation")
)

// PolicyError carries the diagnostic detail behind ErrFilePolicy.
type PolicyError struct {
	Op     string // "runFile" (dofile and file-based require go through RunFile)
	Path   string
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Reason
}

func (e *PolicyError) Unwrap() error { return ErrFilePolicy }
