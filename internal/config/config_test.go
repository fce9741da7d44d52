package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
llm:
  provider: openai
  base_url: https://api.example.com
  api_key: dummy
  model: gpt-4o
  timeout: 15s
server:
  host: 127.0.0.1
  port: "8080"
weather:
  api_key: owm-key
persona:
  backend: redis
mcp_servers:
  - name: local
    type: stdio
    command: ./mock
    args: ["--flag"]
    env:
      FOO: bar
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoad_File verifies that Load unmarshals every section of a YAML file.
func TestLoad_File(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "owm-key", cfg.Weather.APIKey)
	require.Equal(t, "redis", cfg.Persona.Backend)

	require.Len(t, cfg.MCPServers, 1)
	s := cfg.MCPServers[0]
	require.Equal(t, ClientTypeStdio, s.Type)
	require.Equal(t, "./mock", s.Command)
	require.Equal(t, []string{"--flag"}, s.Args)
	// viper lower-cases map keys
	require.Equal(t, "bar", s.Env["foo"])
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "log:\n  level: debug\n"))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "gemini", cfg.LLM.Provider)
	require.InDelta(t, 0.9, cfg.LLM.Temperature, 0.0001)
	require.Equal(t, "America/Sao_Paulo", cfg.Clock.Timezone)
	require.Equal(t, "sqlite", cfg.Persona.Backend)
	require.Equal(t, "global", cfg.Persona.GlobalKey)
	require.Equal(t, "3000", cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 30, cfg.RateLimit.Requests)

	// the slowest turn makes three provider calls and one weather call
	require.Greater(t, cfg.Server.WriteTimeout, 3*cfg.LLM.Timeout+cfg.Weather.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))
	t.Setenv("GUSTAVO_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("OPENWEATHER_API_KEY", "from-legacy-env")
	t.Setenv("ADMIN_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, "from-legacy-env", cfg.Weather.APIKey)
	require.Equal(t, "s3cret", cfg.Admin.Secret)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
}
