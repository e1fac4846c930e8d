package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "controlcalidad.db", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RequestTimeoutSecs)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 100, cfg.SPC.SubmitWindow)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 10, cfg.Monitoring.PendingBacklogThreshold)
	assert.InDelta(t, 95.0, cfg.Monitoring.ConformityThreshold, 0.001)
	assert.Equal(t, "calidad", cfg.Influx.Bucket)
	assert.Empty(t, cfg.Influx.URL)

	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/qc
log:
  level: debug
  format: console
server:
  port: 9090
spc:
  submit_window: 25
monitoring:
  enabled: true
  webhook_url: http://hooks.local/qc
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/qc", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.SPC.SubmitWindow)
	assert.True(t, cfg.Monitoring.Enabled)
	// Defaults still apply for unset values
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("QC_STORE_DRIVER", "postgres")
	t.Setenv("QC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("QC_SERVER_PORT", "3000")
	t.Setenv("QC_SPC_SUBMIT_WINDOW", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 50, cfg.SPC.SubmitWindow)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "qc.db"
	cfg.Server.Port = 8080
	cfg.Server.RequestTimeoutSecs = 30
	cfg.SPC.SubmitWindow = 100
	cfg.Monitoring.ConformityThreshold = 95
	cfg.Monitoring.CheckIntervalSecs = 60
	cfg.Monitoring.NotifyRatePerSec = 1
	return cfg
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateSubmitWindow(t *testing.T) {
	cfg := validDefaults()
	cfg.SPC.SubmitWindow = 1

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spc.submit_window")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port is irrelevant outside serve.
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateServe_Monitoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.Enabled = true

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.webhook_url is required")

	cfg.Monitoring.WebhookURL = "http://hooks.local"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Monitoring.ConformityThreshold = 101
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conformity_threshold")

	cfg.Monitoring.ConformityThreshold = 95
	cfg.Monitoring.NotifyNewAlerts = true
	cfg.Monitoring.NotifyRatePerSec = 0
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify_rate_per_sec")
}

func TestValidateServe_Influx(t *testing.T) {
	cfg := validDefaults()
	cfg.Influx.URL = "http://influx:8086"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx.bucket")

	cfg.Influx.Bucket = "calidad"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
