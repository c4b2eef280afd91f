package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("APP_ENV", "test")
	t.Setenv(ConfigPathEnvVar, "")
	return dir
}

func TestLoadDefaultsWithRequiredSecrets(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, AuthModeJWT, cfg.Auth.Mode)
	assert.Equal(t, "token", cfg.Auth.CookieName)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 4<<20, cfg.Media.MaxImageBytes)
	assert.Equal(t, "0.0.0.0:5000", cfg.HTTPAddr())
	assert.Equal(t, int64(8<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
	assert.NotEmpty(t, cfg.Redis.Instance)
	assert.DirExists(t, filepath.Join(dir, "uploads"))
}

func TestLoadRedisInstance(t *testing.T) {
	isolate(t)
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("REDIS_INSTANCE", "chat-2")
	t.Setenv("REDIS_TTL", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "quickchat:online", cfg.Redis.Key)
	assert.Equal(t, "chat-2", cfg.Redis.Instance)
	assert.Equal(t, 45*time.Second, cfg.Redis.TTL)
}

func TestLoadEnvOverridesAndLists(t *testing.T) {
	isolate(t)
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("WS_WRITE_TIMEOUT", "3s")
	t.Setenv("UPLOAD_DIR", "media")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 3*time.Second, cfg.WS.WriteTimeout)
	assert.Equal(t, "media", cfg.Media.UploadDir)
}

func TestLoadYAMLFileBelowEnv(t *testing.T) {
	dir := isolate(t)
	yml := "app_name: Chat\nport: 7000\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o600))
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Chat", cfg.AppName)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "missing encrypt key", mutate: func(c *Config) { c.EncryptKey = "" }, wantErr: "ENCRYPTION_KEY"},
		{name: "jwt without secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: "JWT_SECRET"},
		{
			name: "provider without key",
			mutate: func(c *Config) {
				c.Auth.Mode = AuthModeProvider
				c.Auth.WebhookSecret = "whsec_x"
			},
			wantErr: "AUTH_PROVIDER_PUBLIC_KEY",
		},
		{name: "unknown mode", mutate: func(c *Config) { c.Auth.Mode = "saml" }, wantErr: "unknown auth mode"},
		{
			name:    "cloudinary without credentials",
			mutate:  func(c *Config) { c.Media.Backend = MediaCloudinary },
			wantErr: "cloudinary",
		},
		{
			name: "cloudinary url is enough",
			mutate: func(c *Config) {
				c.Media.Backend = MediaCloudinary
				c.Media.CloudinaryURL = "cloudinary://k:s@demo"
			},
		},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "unknown database driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.EncryptKey = "k"
			cfg.Auth.JWTSecret = "s"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
