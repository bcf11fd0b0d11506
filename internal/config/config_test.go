package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing-but-unused"))
	require.Error(t, err)
	_ = cfg

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Judge.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Judge.Model)
	assert.Equal(t, "gemini-2.5-pro", cfg.Judge.StrongModel)
	assert.Equal(t, 30, cfg.Queue.LearningIntervalMinutes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gigi.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[judge]
provider = "claude"
api_key = "sk-test"
model = "claude-sonnet-4-20250514"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.Judge.Provider)
	assert.Equal(t, "sk-test", cfg.Judge.APIKey)
	// Defaults survive for keys the file doesn't set.
	assert.Equal(t, "gemini-2.5-pro", cfg.Judge.StrongModel)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GIGI_JUDGE__API_KEY", "from-env")
	t.Setenv("GIGI_SERVER__PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Judge.APIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	// Missing judge credential is fatal.
	cfg.Judge.APIKey = ""
	require.Error(t, cfg.Validate())

	cfg.Judge.APIKey = "key"
	require.NoError(t, cfg.Validate())

	// Ollama runs without a key.
	cfg.Judge.APIKey = ""
	cfg.Judge.Provider = "ollama"
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gigi.toml")
	require.NoError(t, Init(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Judge.Provider)

	assert.Error(t, Init(path))
}
