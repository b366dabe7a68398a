// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	// 验证 Redis 默认值
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	// 验证 Database 默认值
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)

	// 验证 Session 默认值
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Session.DedupTTL)
	assert.Equal(t, 5*time.Second, cfg.Session.OpTimeout)

	// 验证 Gateway 默认值
	assert.Equal(t, 64, cfg.Gateway.ClientBuffer)
	assert.Equal(t, int64(64*1024), cfg.Gateway.MaxMessageBytes)

	// 验证 Queue 默认值
	assert.Equal(t, 5*time.Second, cfg.Queue.RefreshInterval)
	assert.Equal(t, 120, cfg.Queue.PreviewLength)

	// 验证 Log 默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

session:
  ttl: 1h
  op_timeout: 2s

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

queue:
  refresh_interval: 10s
  preview_length: 80

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 2*time.Second, cfg.Session.OpTimeout)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, 10*time.Second, cfg.Queue.RefreshInterval)
	assert.Equal(t, 80, cfg.Queue.PreviewLength)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未覆盖的字段保持默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 24*time.Hour, cfg.Session.DedupTTL)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("HANDOFF_SERVER_HTTP_PORT", "9000")
	t.Setenv("HANDOFF_SESSION_TTL", "30m")
	t.Setenv("HANDOFF_REDIS_ADDR", "env-redis:6379")
	t.Setenv("HANDOFF_LOG_OUTPUT_PATHS", "stdout, /var/log/handoff.log")
	t.Setenv("HANDOFF_TELEMETRY_ENABLED", "true")
	t.Setenv("HANDOFF_TELEMETRY_SAMPLE_RATE", "0.25")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"stdout", "/var/log/handoff.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoader_EnvOverrideInvalidValue(t *testing.T) {
	t.Setenv("HANDOFF_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_CustomValidator(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		return nil
	}).Load()

	require.NoError(t, err)
	assert.True(t, called)
}

// --- Validate 测试 ---

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Session.TTL = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Queue.RefreshInterval = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Gateway.ClientBuffer = 0
	assert.Error(t, cfg.Validate())
}

// --- DSN 测试 ---

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", Name: "handoff", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=handoff sslmode=disable", d.DSN())

	d.Driver = "mysql"
	assert.Equal(t, "u:p@tcp(db:5432)/handoff?parseTime=true", d.DSN())

	d.Driver = "sqlite"
	assert.Equal(t, "handoff", d.DSN())

	d.Driver = "oracle"
	assert.Equal(t, "", d.DSN())
}
