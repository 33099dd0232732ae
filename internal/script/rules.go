package script

// LibRule describes how a single standard library's symbols are filtered
// when copied into a sandbox environment. Exactly one of Allowed/Denied
// applies, selected by AllowAll.
type LibRule struct {
	// AllowAll selects a deny-list rule: every symbol is copied except
	// those named in Denied. When false, Allowed is an allow-list: only
	// the named symbols are copied.
	AllowAll bool
	Allowed  []string
	Denied   []string
}

// Allowlist builds a LibRule that exposes only the named symbols.
func Allowlist(names ...string) LibRule {
	return LibRule{AllowAll: false, Allowed: names}
}

// DenyOnAllowAll builds a LibRule that exposes everything except the named
// symbols.
func DenyOnAllowAll(denied ...string) LibRule {
	return LibRule{AllowAll: true, Denied: denied}
}

// libRules are the built-in, contract (not suggestion) filtering rules.
// Libraries absent from this map have no rule and are therefore never
// loadable into a sandbox, even on explicit request — independent of
// whether the underlying interpreter could open them at all.
var libRules = map[StdLib]LibRule{
	LibBase: Allowlist(
		"assert", "error", "ipairs", "next", "pairs", "pcall", "select",
		"tonumber", "tostring", "type", "unpack", "_VERSION", "xpcall",
	),
	LibCoroutine: DenyOnAllowAll(),
	LibMath:      DenyOnAllowAll("random", "randomseed"),
	LibOS:        Allowlist("clock", "difftime", "time"),
	LibString:    DenyOnAllowAll("dump"),
	LibTable:     DenyOnAllowAll(),
}

// ruleFor looks up the filtering rule for lib. ok is false when the
// library has no rule at all (debug, io, package, ffi, jit, bit32, utf8)
// and is therefore unconditionally refused.
func ruleFor(lib StdLib) (rule LibRule, ok bool) {
	rule, ok = libRules[lib]
	return
}

// Preset names a predetermined selection of standard libraries a sandbox
// exposes. Custom unlocks require() at runtime; the other three are
// frozen after construction.
type Preset int

const (
	PresetCore Preset = iota
	PresetMinimal
	PresetComplete
	PresetCustom
)

// defaultLibs returns the library set a preset loads at construction/reset
// time. PresetCustom starts empty; libraries are added later via
// Sandbox.Require.
func (p Preset) defaultLibs() []StdLib {
	switch p {
	case PresetMinimal:
		return []StdLib{LibBase, LibTable}
	case PresetComplete:
		return []StdLib{LibBase, LibCoroutine, LibMath, LibOS, LibString, LibTable}
	default: // PresetCore, PresetCustom
		return nil
	}
}

// frozen reports whether require() is denied after construction.
func (p Preset) frozen() bool { return p != PresetCustom }

func (p Preset) String() string {
	switch p {
	case PresetCore:
		return "core"
	case PresetMinimal:
		return "minimal"
	case PresetComplete:
		return "complete"
	case PresetCustom:
		return "custom"
	default:
		return "unknown"
	}
}
