package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.URL)
	assert.Equal(t, time.Duration(0), cfg.API.Timeout)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "insurefire.db", cfg.Database.DSN)
	assert.Equal(t, "file-upload", cfg.Storage.Bucket)
	assert.Equal(t, 1500*time.Millisecond, cfg.Service.SettleDelay)
	assert.Equal(t, time.Second, cfg.Service.FrameInterval)
	assert.Equal(t, "info", cfg.Service.LogLevel)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("INSUREFIRE_API_URL", "https://api.example.com")
	t.Setenv("INSUREFIRE_API_TIMEOUT", "30s")
	t.Setenv("INSUREFIRE_DB_DRIVER", "postgres")
	t.Setenv("INSUREFIRE_DB_DSN", "postgres://u:p@localhost/insurefire")
	t.Setenv("INSUREFIRE_S3_ENDPOINT", "localhost:9000")
	t.Setenv("INSUREFIRE_S3_ACCESS_KEY", "minio")
	t.Setenv("INSUREFIRE_S3_SECRET_KEY", "minio123")
	t.Setenv("INSUREFIRE_S3_USE_SSL", "true")
	t.Setenv("INSUREFIRE_SETTLE_DELAY", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.API.URL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "localhost:9000", cfg.Storage.Endpoint)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, 2*time.Second, cfg.Service.SettleDelay)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "INSUREFIRE_DB_DRIVER", "mysql"},
		{"negative timeout", "INSUREFIRE_API_TIMEOUT", "-1s"},
		{"zero frame interval", "INSUREFIRE_FRAME_INTERVAL", "0s"},
		{"endpoint without keys", "INSUREFIRE_S3_ENDPOINT", "localhost:9000"},
		{"bad duration", "INSUREFIRE_SETTLE_DELAY", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("INSUREFIRE_API_URL=http://from-file\nINSUREFIRE_FRAME_DIR=/tmp/frames-from-file\n"), 0600))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	t.Setenv("INSUREFIRE_API_URL", "http://from-env")
	t.Setenv("INSUREFIRE_FRAME_DIR", "")
	os.Unsetenv("INSUREFIRE_FRAME_DIR")

	LoadEnvFile()
	t.Cleanup(func() { os.Unsetenv("INSUREFIRE_FRAME_DIR") })

	assert.Equal(t, "http://from-env", os.Getenv("INSUREFIRE_API_URL"))
	assert.Equal(t, "/tmp/frames-from-file", os.Getenv("INSUREFIRE_FRAME_DIR"))
}
