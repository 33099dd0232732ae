// Package engineconfig loads the engine-level configuration that governs a
// sandbox: which preset it starts with, its memory and timeout budgets, and
// which directories its scripts may read from. Grounded on the teacher's
// internal/config package, re-targeted from a Lua-described dotfile
// manifest to a plain YAML document (gopkg.in/yaml.v3), the format the
// teacher itself already uses for its chezmoi-facing manifests.
package engineconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strataggus/strataggus/internal/script"
)

// Config is the engine's top-level configuration document.
type Config struct {
	DataPath         string   `yaml:"data_path"`
	MemoryLimitBytes uint64   `yaml:"memory_limit_bytes"`
	ScriptTimeoutMS  int      `yaml:"script_timeout_ms"`
	AllowedRoots     []string `yaml:"allowed_roots"`
	Preset           string   `yaml:"preset"`
}

// ParseError carries a friendly message alongside the raw parser detail,
// matching the teacher's internal/config.ParseError shape.
type ParseError struct {
	Message string
	Detail  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Default returns the configuration used when no file is supplied: the
// core preset, no memory limit, a 5ms script timeout, and no allowed
// script roots (the host must call Sandbox.AllowScriptPath itself, or set
// allowed_roots explicitly).
func Default() *Config {
	return &Config{
		ScriptTimeoutMS: 5,
		Preset:          "core",
	}
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Message: "failed to read configuration file", Detail: err.Error()}
	}
	return Parse(data)
}

// Parse parses a YAML configuration document from memory, applying
// Default()'s values for anything the document omits.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Message: "invalid configuration YAML", Detail: err.Error()}
	}
	return cfg, nil
}

// Timeout converts ScriptTimeoutMS to a time.Duration, defaulting to 5ms
// when zero or negative.
func (c *Config) Timeout() time.Duration {
	if c.ScriptTimeoutMS <= 0 {
		return 5 * time.Millisecond
	}
	return time.Duration(c.ScriptTimeoutMS) * time.Millisecond
}

// ScriptPreset maps the configuration's Preset string onto a script.Preset,
// defaulting to script.PresetCore for an empty or unrecognized value.
func (c *Config) ScriptPreset() script.Preset {
	switch c.Preset {
	case "minimal":
		return script.PresetMinimal
	case "complete":
		return script.PresetComplete
	case "custom":
		return script.PresetCustom
	default:
		return script.PresetCore
	}
}
