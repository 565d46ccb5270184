package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

//go:generate sh -c "cd .. && go run ./tools/config-schema-generator/"

// WatcherConfig controls the filesystem watch and debounce behavior.
type WatcherConfig struct {
	// DebounceMs is the quiescence window after the last observed change
	// before a coalesced run-changed notification is emitted.
	DebounceMs int `yaml:"debounce_ms,omitempty" toml:"debounce_ms,omitempty" json:"debounce_ms,omitempty" jsonschema:"description=Quiescence window in milliseconds before a coalesced change notification (default: 300)"`

	// IgnorePatterns are .dockerignore-style patterns for paths whose
	// changes should not trigger a refresh (editor swap files etc).
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty" toml:"ignore_patterns,omitempty" json:"ignore_patterns,omitempty" jsonschema:"description=Patterns for file paths to ignore when watching run directories"`
}

// AgentConfig describes the external executable that runs are dispatched to.
type AgentConfig struct {
	// Executable is the path to the agent binary. Resolution against PATH
	// happens at dispatch time, not load time.
	Executable string `yaml:"executable" toml:"executable" json:"executable" jsonschema:"description=Path to the external agent executable"`

	// ExtraArgs are prepended to every invocation, before the prompt.
	ExtraArgs []string `yaml:"extra_args,omitempty" toml:"extra_args,omitempty" json:"extra_args,omitempty" jsonschema:"description=Additional arguments passed on every dispatch and resume"`
}

// Config is the top-level warden configuration, loaded from warden.yml
// or warden.toml.
type Config struct {
	Version string `yaml:"version" toml:"version" json:"version" jsonschema:"description=Configuration version (e.g. '1.0')"`

	// RunsRoot is the directory scanned for run-<date>-<time> directories.
	RunsRoot string `yaml:"runs_root,omitempty" toml:"runs_root,omitempty" json:"runs_root,omitempty" jsonschema:"description=Root directory containing run directories"`

	Agent   AgentConfig   `yaml:"agent,omitempty" toml:"agent,omitempty" json:"agent,omitempty" jsonschema:"description=External agent executable settings"`
	Watcher WatcherConfig `yaml:"watcher,omitempty" toml:"watcher,omitempty" json:"watcher,omitempty" jsonschema:"description=Filesystem watch and debounce settings"`

	// EventBuffer is the per-run capacity of the latest-events ring.
	EventBuffer int `yaml:"event_buffer,omitempty" toml:"event_buffer,omitempty" json:"event_buffer,omitempty" jsonschema:"description=How many recent journal events are retained per run (default: 50)"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// DefaultDebounceMs is used when the watcher section does not set one.
const DefaultDebounceMs = 300

// DefaultEventBuffer is the default latest-events capacity per run.
const DefaultEventBuffer = 50

// SetDefaults fills zero-valued fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = DefaultDebounceMs
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded warden.yml into the provided target struct. The target must be a
// pointer. This provides a type-safe way for tools layered on warden to
// access their custom configuration sections.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct, keyed by yaml tags.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
