package lint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/dlinter/dlin/internal/types"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "yaml",
			file: "dlin.yaml",
			content: `name: project
rules:
  BP004:
    severity: off
  root-user:
    severity: error
optimizer:
  disable: [strip-sudo]
registry:
  enabled: true
  timeout: 2s
cache:
  dir: /tmp/dlin
  max_age: 1h
`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "project", cfg.Name)
				assert.Equal(t, tt.RuleSeverity(tt.SeverityOff), cfg.Rules["BP004"])
				assert.Equal(t, tt.RuleSeverity(tt.SeverityError), cfg.Rules["root-user"])
				assert.Equal(t, []string{"strip-sudo"}, cfg.Optimizer.Disable)
				assert.True(t, cfg.Registry.Enabled)
				assert.Equal(t, 2*time.Second, cfg.Registry.Timeout)
				assert.Equal(t, "/tmp/dlin", cfg.Cache.Dir)
				assert.Equal(t, time.Hour, cfg.Cache.MaxAge)
			},
		},
		{
			name: "toml",
			file: "dlin.toml",
			content: `name = "project"

[rules.SEC001]
severity = "warning"

[optimizer]
disable = ["apt-update"]

[registry]
enabled = true
timeout = "3s"
`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "project", cfg.Name)
				assert.Equal(t, tt.RuleSeverity(tt.SeverityWarning), cfg.Rules["SEC001"])
				assert.Equal(t, []string{"apt-update"}, cfg.Optimizer.Disable)
				assert.Equal(t, 3*time.Second, cfg.Registry.Timeout)
			},
		},
		{
			name:    "partial file keeps defaults",
			file:    "partial.yaml",
			content: "name: partial\n",
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "partial", cfg.Name)
				assert.NotNil(t, cfg.Rules)
				assert.False(t, cfg.Registry.Enabled)
				assert.Equal(t, DefaultConfig().Registry.Timeout, cfg.Registry.Timeout)
				assert.Equal(t, DefaultConfig().Cache.MaxAge, cfg.Cache.MaxAge)
			},
		},
		{
			name:    "empty file",
			file:    "empty.yaml",
			content: "\n",
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "dlin", cfg.Name)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			cfg, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, path, cfg.Path())
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist, "an explicit path must exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  BP001:\n    severity: loud\n"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	badToml := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badToml, []byte("name = \n"), 0o644))
	_, err = LoadConfig(badToml)
	assert.Error(t, err)
}

func TestWriteConfigRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigPath)
	cfg := DefaultConfig()
	cfg.Rules["SEC002"] = tt.RuleSeverity(tt.SeverityOff)
	cfg.Rules["BP004"] = tt.ConfigRule{}
	cfg.Optimizer.Disable = []string{"merge-run"}

	require.NoError(t, WriteConfig(path, cfg))
	assert.ErrorIs(t, WriteConfig(path, cfg), os.ErrExist)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Rules, loaded.Rules)
	assert.Equal(t, cfg.Optimizer, loaded.Optimizer)
	assert.Equal(t, cfg.Registry, loaded.Registry)
	assert.Equal(t, cfg.Cache, loaded.Cache)
}

func TestNewRejectsUnknownPass(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Optimizer.Disable = []string{"no-such-pass"}

	_, err := New(nil, cfg)
	assert.Error(t, err)
}
