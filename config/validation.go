package config

import (
	"fmt"

	"github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/schema"
)

// Validate checks the configuration against the embedded JSON schema and
// the semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	validator, err := schema.NewValidator()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load config schema")
	}

	if err := validator.Validate(c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "configuration failed schema validation")
	}

	if c.Watcher.DebounceMs < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("watcher.debounce_ms must not be negative, got %d", c.Watcher.DebounceMs))
	}
	if c.EventBuffer < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("event_buffer must not be negative, got %d", c.EventBuffer))
	}

	return nil
}
