package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(body)), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `environment: DEV`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverPostgres, cfg.DB.Driver)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "projectflow:transitions", cfg.Redis.Channel)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
db:
  driver: memory
  host: db.internal
  port: 6543
auth:
  issuer: https://id.example.com/oauth2/default/
  client_id: abc
redis:
  addr: localhost:6379
log:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.DB.Driver)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "https://id.example.com/oauth2/default", cfg.Auth.Issuer)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `db: {host: from-file}`)
	t.Setenv("PROJECTFLOW_DB_HOST", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DB.Host)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `db: {driver: mongo}`)

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "unknown db.driver")
}

func TestLoadConfig_TLSRequiresFiles(t *testing.T) {
	path := writeConfig(t, `tls: {enable: true}`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{}
	cfg.DB.Host = "h"
	cfg.DB.Port = 1
	cfg.DB.User = "u"
	cfg.DB.Password = "p"
	cfg.DB.Name = "n"
	cfg.DB.SSLMode = "disable"
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", cfg.DSN())
}
