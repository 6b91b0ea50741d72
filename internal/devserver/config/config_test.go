package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func noDotenv(t *testing.T) {
	t.Helper()
	orig := loadDotenv
	loadDotenv = func(...string) error { return nil }
	t.Cleanup(func() { loadDotenv = orig })
}

func writeJSON(t *testing.T, v map[string]any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "devserver.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, 24*time.Hour, c.TokenValidity)
	assert.Equal(t, "dev-device", c.DeviceID)
	assert.Empty(t, c.DatabaseDSN)
	assert.Empty(t, c.SecretKey)
	assert.Zero(t, c.DemoAlertInterval)
	assert.False(t, c.S3Enabled())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	noDotenv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(defaults(), cfg))
}

func TestLoad_Precedence(t *testing.T) {
	noDotenv(t)

	path := writeJSON(t, map[string]any{
		"endpoint_addr_grpc":  ":6000",
		"database_dsn":        "postgres://json",
		"token_validity":      "2h",
		"demo_alert_interval": "30s",
	})
	t.Setenv("FIELDLINE_DEV_DATABASE_DSN", "postgres://env")
	t.Setenv("FIELDLINE_DEV_SECRET_KEY", "env-secret")

	cfg, err := Load([]string{"-c", path, "-a", ":7000", "-alerts", "5", "-zzz"})
	require.NoError(t, err)

	want := defaults()
	want.EndpointAddrGRPC = ":7000"
	want.DatabaseDSN = "postgres://env"
	want.SecretKey = "env-secret"
	want.TokenValidity = 2 * time.Hour
	want.DemoAlertInterval = 5 * time.Second
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoad_S3Flags(t *testing.T) {
	noDotenv(t)

	cfg, err := Load([]string{"-u", "ak", "-p", "sk", "-b", "bucket", "-e", "http://127.0.0.1:9000/", "-t", "0"})
	require.NoError(t, err)

	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "http://127.0.0.1:9000/", cfg.S3BaseEndpoint)
	assert.Zero(t, cfg.TokenValidity)
}

func TestLoad_Invalid(t *testing.T) {
	noDotenv(t)

	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "empty address", args: []string{"-a", ""}},
		{name: "bad endpoint", args: []string{"-e", "not a url"}},
		{name: "bad log level", args: []string{"-log-level", "loud"}},
		{name: "negative alerts", env: map[string]string{"FIELDLINE_DEV_DEMO_ALERT_INTERVAL": "-5s"}},
		{name: "bad env duration", env: map[string]string{"FIELDLINE_DEV_TOKEN_VALIDITY": "forever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingJSON(t *testing.T) {
	noDotenv(t)

	_, err := Load([]string{"-c", filepath.Join(t.TempDir(), "absent.json")})
	require.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_BadJSON(t *testing.T) {
	noDotenv(t)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := Load([]string{"-c", path})
	require.ErrorContains(t, err, "failed to parse config file")
}
