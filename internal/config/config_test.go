package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir runs the test from an empty directory so no config file or .env is
// picked up unless the test writes one.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2, cfg.MaxRoomMembers)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, time.Minute, cfg.JoinRateInterval)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := chdir(t)
	t.Setenv("CONFIG_ENV", "test")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(`
mode: debug
port: 9000
max_room_members: 0
allowed_origins:
  - https://a.example
`), 0o644))
	t.Setenv("RDV_PORT", "9100")
	t.Setenv("RDV_ALLOWED_ORIGINS", "https://b.example, https://c.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 0, cfg.MaxRoomMembers)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.AllowedOrigins)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	t.Setenv("CONFIG_ENV", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RDV_MAX_ROOM_MEMBERS=5\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RDV_MAX_ROOM_MEMBERS") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxRoomMembers)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:             8080,
			MaxRoomMembers:   2,
			PingPeriod:       time.Second,
			PongWait:         2 * time.Second,
			SendBuffer:       8,
			JoinRateLimit:    1,
			JoinRateInterval: time.Second,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "negative capacity", mutate: func(c *Config) { c.MaxRoomMembers = -1 }, wantErr: true},
		{name: "ping not shorter than pong wait", mutate: func(c *Config) { c.PingPeriod = c.PongWait }, wantErr: true},
		{name: "no send buffer", mutate: func(c *Config) { c.SendBuffer = 0 }, wantErr: true},
		{name: "no join rate", mutate: func(c *Config) { c.JoinRateLimit = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
