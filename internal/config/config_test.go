package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	p := cfg.Policy.Domain()
	assert.Equal(t, domain.DefaultPolicy(), p)
	assert.False(t, cfg.UsesRedis())
	assert.False(t, cfg.UsesSQL())
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gocare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
policy:
  escalation: reset
  end_session_role: authenticating
  external_call_timeout: 3s
store:
  backend: redis
  ttl: 1h
redis:
  addr: "redis:6379"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, time.Hour, cfg.Store.TTL.Std())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.UsesRedis())

	p := cfg.Policy.Domain()
	assert.Equal(t, domain.EscalationReset, p.Escalation)
	assert.Equal(t, domain.RoleAuthenticating, p.EndSessionRole)
	assert.Equal(t, 3*time.Second, p.ExternalCallTimeout)

	// untouched sections keep their defaults
	assert.Equal(t, BackendMemory, cfg.Directory.Backend)
	assert.True(t, cfg.Store.MaskPII)
}

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gocare.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"policy": {"external_call_timeout": "250ms", "allow_user_restart": true},
		"directory": {"backend": "sql"},
		"sql": {"driver": "sqlite3", "dsn": ":memory:"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Policy.ExternalCallTimeout.Std())
	assert.True(t, cfg.Policy.AllowUserRestart)
	assert.True(t, cfg.UsesSQL())
	assert.Equal(t, ":memory:", cfg.SQL.DSN)
}

func TestLoad_JSONRejectsNumericDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gocare.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"policy": {"external_call_timeout": 10}}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("default path", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"GOCARE_ADDR":                           ":7000",
		"GOCARE_ESCALATION":                     "reset",
		"GOCARE_EXTERNAL_CALL_TIMEOUT":          "2s",
		"GOCARE_ALLOW_USER_RESTART":             "true",
		"GOCARE_KEEP_ATTEMPTS_ON_NUMBER_CHANGE": "true",
		"GOCARE_STORE":                          "redis",
		"GOCARE_REDIS_DB":                       "3",
		"OPENAI_API_KEY":                        "sk-test",
		"GOCARE_LLM_DETECT":                     "1",
		"GOCARE_LOG_LEVEL":                      "",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "reset", cfg.Policy.Escalation)
	assert.Equal(t, 2*time.Second, cfg.Policy.ExternalCallTimeout.Std())
	assert.True(t, cfg.Policy.AllowUserRestart)
	assert.True(t, cfg.Policy.Domain().KeepAttemptsOnNumberChange)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.True(t, cfg.LLM.Detect)
	assert.Equal(t, "info", cfg.Log.Level, "empty values do not override")
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"GOCARE_MASK_PII":              "maybe",
		"GOCARE_EXTERNAL_CALL_TIMEOUT": "soon",
		"GOCARE_REDIS_DB":              "zero",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOCARE_MASK_PII")
	assert.Contains(t, err.Error(), "GOCARE_EXTERNAL_CALL_TIMEOUT")
	assert.Contains(t, err.Error(), "GOCARE_REDIS_DB")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown escalation", func(c *Config) { c.Policy.Escalation = "drop" }, "policy"},
		{"end session in Main", func(c *Config) { c.Policy.EndSessionRole = "main" }, "end_session_role"},
		{"unknown directory", func(c *Config) { c.Directory.Backend = "ldap" }, "directory"},
		{"mcp without url", func(c *Config) { c.Directory.Backend = BackendMCP }, "mcp.url"},
		{"unknown store", func(c *Config) { c.Store.Backend = "etcd" }, "store"},
		{"distributed lock without redis", func(c *Config) { c.Store.DistributedLock = true }, "distributed_lock"},
		{"unknown audit", func(c *Config) { c.Audit.Backend = "kafka" }, "audit"},
		{"sql without dsn", func(c *Config) { c.Store.Backend = BackendSQL; c.SQL.DSN = "" }, "dsn"},
		{"redis without addr", func(c *Config) { c.Audit.Backend = BackendRedis; c.Redis.Addr = "" }, "redis"},
		{"llm without key", func(c *Config) { c.LLM.Respond = true }, "api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GOCARE_DOTENV_SAMPLE=from-file\n"), 0o644))
	t.Setenv("GOCARE_DOTENV_SAMPLE", "")
	os.Unsetenv("GOCARE_DOTENV_SAMPLE")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("GOCARE_DOTENV_SAMPLE"))
}
