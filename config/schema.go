package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the base JSON Schema for the core warden
// configuration. It reflects the Config struct from types.go but excludes
// the 'Extensions' field, which accepts arbitrary keys by design.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		// Extensions may add arbitrary top-level keys, so unknown
		// properties stay allowed at the document level.
		AllowAdditionalProperties: true,
		// Expand struct references instead of using $ref for a cleaner schema.
		ExpandedStruct: true,
		// Use YAML field names for property names.
		FieldNameTag: "yaml",
	}

	type BaseConfig struct {
		Version     string        `yaml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
		RunsRoot    string        `yaml:"runs_root,omitempty" jsonschema:"description=Root directory containing run directories"`
		Agent       AgentConfig   `yaml:"agent,omitempty" jsonschema:"description=External agent executable settings"`
		Watcher     WatcherConfig `yaml:"watcher,omitempty" jsonschema:"description=Filesystem watch and debounce settings"`
		EventBuffer int           `yaml:"event_buffer,omitempty" jsonschema:"description=How many recent journal events are retained per run"`
	}

	schema := r.Reflect(&BaseConfig{})
	schema.Title = "Warden Configuration"
	schema.Description = "Schema for core warden.yml properties."
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(schema, "", "  ")
}
