package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardentools/warden/errors"
)

func TestLoadYAML(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Config
	}{
		{
			name: "minimal config gets defaults",
			yaml: `
version: "1.0"
agent:
  executable: /usr/local/bin/agent`,
			want: Config{
				Version: "1.0",
				Agent:   AgentConfig{Executable: "/usr/local/bin/agent"},
				Watcher: WatcherConfig{DebounceMs: DefaultDebounceMs},

				EventBuffer: DefaultEventBuffer,
			},
		},
		{
			name: "full config",
			yaml: `
version: "1.0"
runs_root: /var/lib/warden/runs
event_buffer: 200
agent:
  executable: agent
  extra_args: ["--quiet", "--color=never"]
watcher:
  debounce_ms: 150
  ignore_patterns:
    - "*.swp"
    - "*.tmp"`,
			want: Config{
				Version:  "1.0",
				RunsRoot: "/var/lib/warden/runs",
				Agent: AgentConfig{
					Executable: "agent",
					ExtraArgs:  []string{"--quiet", "--color=never"},
				},
				Watcher: WatcherConfig{
					DebounceMs:     150,
					IgnorePatterns: []string{"*.swp", "*.tmp"},
				},
				EventBuffer: 200,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromBytes([]byte(tt.yaml), ".yml")
			require.NoError(t, err)

			assert.Equal(t, tt.want.Version, cfg.Version)
			assert.Equal(t, tt.want.RunsRoot, cfg.RunsRoot)
			assert.Equal(t, tt.want.Agent, cfg.Agent)
			assert.Equal(t, tt.want.Watcher, cfg.Watcher)
			assert.Equal(t, tt.want.EventBuffer, cfg.EventBuffer)
		})
	}
}

func TestLoadTOML(t *testing.T) {
	content := `
version = "1.0"
runs_root = "/srv/runs"

[agent]
executable = "agent"
extra_args = ["-p"]

[watcher]
debounce_ms = 500
`
	cfg, err := LoadFromBytes([]byte(content), ".toml")
	require.NoError(t, err)

	assert.Equal(t, "/srv/runs", cfg.RunsRoot)
	assert.Equal(t, "agent", cfg.Agent.Executable)
	assert.Equal(t, []string{"-p"}, cfg.Agent.ExtraArgs)
	assert.Equal(t, 500, cfg.Watcher.DebounceMs)
	assert.Equal(t, DefaultEventBuffer, cfg.EventBuffer)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("version: [unclosed"), ".yml")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "warden.yml"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigNotFound, errors.GetCode(err))
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("WARDEN_TEST_ROOT", "/mnt/runs")

	yaml := `
version: "1.0"
runs_root: ${WARDEN_TEST_ROOT}
agent:
  executable: ${WARDEN_TEST_EXE:-fallback-agent}`

	cfg, err := LoadFromBytes([]byte(yaml), ".yml")
	require.NoError(t, err)

	assert.Equal(t, "/mnt/runs", cfg.RunsRoot)
	assert.Equal(t, "fallback-agent", cfg.Agent.Executable)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WARDEN_RUNS_ROOT", "/override/runs")
	t.Setenv("WARDEN_EXECUTABLE", "/override/agent")
	t.Setenv("WARDEN_DEBOUNCE_MS", "75")

	yaml := `
version: "1.0"
runs_root: /file/runs
agent:
  executable: /file/agent
watcher:
  debounce_ms: 900`

	cfg, err := LoadFromBytes([]byte(yaml), ".yml")
	require.NoError(t, err)

	assert.Equal(t, "/override/runs", cfg.RunsRoot)
	assert.Equal(t, "/override/agent", cfg.Agent.Executable)
	assert.Equal(t, 75, cfg.Watcher.DebounceMs)
}

func TestEnvOverrideRejectsBadDebounce(t *testing.T) {
	t.Setenv("WARDEN_DEBOUNCE_MS", "not-a-number")

	cfg, err := LoadFromBytes([]byte(`version: "1.0"`), ".yml")
	require.NoError(t, err)

	assert.Equal(t, DefaultDebounceMs, cfg.Watcher.DebounceMs)
}

func TestLoadFromFindsConfigInParent(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	content := "version: \"1.0\"\nruns_root: /from/parent\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "warden.yml"), []byte(content), 0o644))

	cfg, err := LoadFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, "/from/parent", cfg.RunsRoot)
}

func TestLoadFromWithoutConfigUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, DefaultDebounceMs, cfg.Watcher.DebounceMs)
	assert.Equal(t, DefaultEventBuffer, cfg.EventBuffer)
	assert.Empty(t, cfg.RunsRoot)
}

func TestFindConfigFilePriority(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.toml"), []byte("version = \"1.0\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.yml"), []byte("version: \"1.0\"\n"), 0o644))

	path, err := FindConfigFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "warden.yml"), path)
}

func TestResolveRunsRoot(t *testing.T) {
	cfg := &Config{RunsRoot: "/explicit"}
	assert.Equal(t, "/explicit", cfg.ResolveRunsRoot())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cfg = &Config{RunsRoot: "~/agent-runs"}
	assert.Equal(t, filepath.Join(home, "agent-runs"), cfg.ResolveRunsRoot())

	cfg = &Config{}
	assert.NotEmpty(t, cfg.ResolveRunsRoot())
}

func TestUnmarshalExtension(t *testing.T) {
	yaml := `
version: "1.0"
logging:
  level: debug
  format: json`

	cfg, err := LoadFromBytes([]byte(yaml), ".yml")
	require.NoError(t, err)

	var logCfg struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, "json", logCfg.Format)

	// Absent keys leave the target zero-valued.
	var missing struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("nope", &missing))
	assert.Empty(t, missing.Level)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
version: "1.0"
agent:
  executable: agent`), ".yml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	bad := &Config{Version: "1.0", Watcher: WatcherConfig{DebounceMs: -5}}
	err = bad.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))

	bad = &Config{Version: "1.0", EventBuffer: -1}
	err = bad.Validate()
	require.Error(t, err)
}
