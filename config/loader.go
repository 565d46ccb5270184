package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/pkg/paths"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames lists the accepted file names, in search priority order.
var configNames = []string{
	"warden.yml",
	"warden.yaml",
	"warden.toml",
	".warden.yml",
	".warden.yaml",
}

// Load reads and parses a warden configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := LoadFromBytes(data, filepath.Ext(path))
	if err != nil {
		if wardenErr, ok := err.(*errors.WardenError); ok {
			return nil, wardenErr.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses configuration content. The ext argument selects the
// decoder (".toml" for TOML, anything else is treated as YAML).
func LoadFromBytes(data []byte, ext string) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if ext == ".toml" {
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML config")
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML config")
		}
	}

	cfg.SetDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// LoadDefault finds and loads the configuration, searching the working
// directory and its parents, then the XDG config directory. A completely
// absent config is not an error: warden runs with defaults so that a first
// dispatch can create everything lazily.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration starting the search from the given directory.
func LoadFrom(startDir string) (*Config, error) {
	path, err := FindConfigFile(startDir)
	if err != nil {
		// No config anywhere: fall back to pure defaults.
		cfg := &Config{}
		cfg.SetDefaults()
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	return Load(path)
}

// FindConfigFile searches for a warden config file from startDir up to the
// filesystem root, then in the XDG config directory.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if configDir := paths.ConfigDir(); configDir != "" {
		for _, name := range configNames {
			path := filepath.Join(configDir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// applyEnvOverrides lets the environment override individual values.
// WARDEN_RUNS_ROOT, WARDEN_EXECUTABLE and WARDEN_DEBOUNCE_MS take
// precedence over anything in the file.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("WARDEN_RUNS_ROOT"); root != "" {
		c.RunsRoot = root
	}
	if exe := os.Getenv("WARDEN_EXECUTABLE"); exe != "" {
		c.Agent.Executable = exe
	}
	if ms := os.Getenv("WARDEN_DEBOUNCE_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			c.Watcher.DebounceMs = v
		}
	}
}

// ResolveRunsRoot returns the configured runs root, or the XDG default
// when none is configured.
func (c *Config) ResolveRunsRoot() string {
	if c.RunsRoot != "" {
		return expandPath(c.RunsRoot)
	}
	return paths.DefaultRunsRoot()
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// expandPath expands a leading tilde in file paths.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
