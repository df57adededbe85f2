package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, 3000, cfg.Chunking.MaxTokens)
	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr())
	assert.True(t, cfg.Secrets.Enabled)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "reqengine", cfg.Events.SubjectPrefix)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  shutdown_timeout: 3s
llm:
  backend: hosted
  model: gpt-4o-mini
  api_key: sk-test-123
index:
  backend: chromem
  path: /tmp/vectors
chunking:
  max_tokens: 1500
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "hosted", cfg.LLM.Backend)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey.Value())
	assert.Equal(t, "chromem", cfg.Index.Backend)
	assert.Equal(t, 1500, cfg.Chunking.MaxTokens)
	// untouched sections keep their defaults
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n", 0o600)
	t.Setenv("REQENGINE_SERVER_PORT", "9100")
	t.Setenv("REQENGINE_INDEX_VECTOR_SIZE", "768")
	t.Setenv("REQENGINE_SECRETS_ENABLED", "false")
	t.Setenv("REQENGINE_LLM_BASE_URL", "http://tgi:80")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 768, cfg.Index.VectorSize)
	assert.False(t, cfg.Secrets.Enabled)
	assert.Equal(t, "http://tgi:80", cfg.LLM.BaseURL)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		perm    os.FileMode
	}{
		{"world writable", "server:\n  port: 9000\n", 0o666},
		{"unknown index backend", "index:\n  backend: faiss\n", 0o600},
		{"bad port", "server:\n  port: 70000\n", 0o600},
		{"hosted without key", "llm:\n  backend: hosted\n", 0o600},
		{"bad level", "logging:\n  level: loud\n", 0o600},
		{"invalid yaml", "server: [\n", 0o600},
		{"events without url", "events:\n  enabled: true\n  url: \"\"\n", 0o600},
		{"wildcard subject prefix", "events:\n  enabled: true\n  subject_prefix: req.>\n", 0o600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content, tt.perm))
			assert.Error(t, err)
		})
	}
}

func TestLoad_NotRegular(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Index.Backend = "faiss"
	cfg.Chunking.MaxTokens = 0
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "index.backend")
	assert.Contains(t, err.Error(), "chunking.max_tokens")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"REQENGINE_LLM_BASE_URL":           "llm.base_url",
		"REQENGINE_SERVER_PORT":            "server.port",
		"REQENGINE_SECRETS_ALLOWLIST_PATH": "secrets.allowlist_path",
		"REQENGINE_DEBUG":                  "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestSecret(t *testing.T) {
	s := Secret("hunter22")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter22", s.Value())

	b, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(b))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))
}
