package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{"ENV", "PORT", "API_PREFIX", "REVOCATION_STORE", "STORAGE_DRIVER", "ALLOWED_ORIGINS", "JWT_ACCESS_EXPIRATION", "DOWNLOAD_WORKERS"} {
		t.Setenv(key, "")
	}
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	t.Setenv("EXPORTS_SIGNED_URL_SECRET", "export-secret")
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, time.Hour, cfg.JWT.AccessExpiration)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiration)
	assert.Equal(t, RevocationRedis, cfg.JWT.RevocationStore)
	assert.Equal(t, StorageLocal, cfg.Storage.Driver)
	assert.Equal(t, int64(50*1024*1024), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 2, cfg.Downloads.Workers)
}

func TestLoadReadsEnvFile(t *testing.T) {
	isolate(t)
	contents := "PORT=8081\nALLOWED_ORIGINS=https://a.example, https://b.example ,\nJWT_ACCESS_EXPIRATION=15m\n"
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte(contents), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiration)
}

func TestLoadEnvironmentOverridesEnvFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("DOWNLOAD_WORKERS=8\n"), 0o600))
	t.Setenv("DOWNLOAD_WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Downloads.Workers)
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("JWT_ACCESS_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env: EnvDevelopment,
			JWT: JWTConfig{
				AccessSecret:    "access-secret",
				RefreshSecret:   "refresh-secret",
				RevocationStore: RevocationRedis,
			},
			Storage: StorageConfig{Driver: StorageLocal},
			Exports: ExportsConfig{SignedURLSecret: "export-secret"},
		}
	}
	long := "0123456789abcdef0123456789abcdef"

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "shared secret", mutate: func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret }, want: "must differ"},
		{name: "short production secrets", mutate: func(c *Config) { c.Env = EnvProduction }, want: "at least 32 bytes"},
		{name: "memory store in production", mutate: func(c *Config) {
			c.Env = EnvProduction
			c.JWT.AccessSecret = long
			c.JWT.RefreshSecret = long + "x"
			c.JWT.RevocationStore = RevocationMemory
		}, want: "REVOCATION_STORE=memory"},
		{name: "memory store in development", mutate: func(c *Config) { c.JWT.RevocationStore = RevocationMemory }},
		{name: "unknown revocation store", mutate: func(c *Config) { c.JWT.RevocationStore = "etcd" }, want: `unknown REVOCATION_STORE "etcd"`},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Driver = StorageS3 }, want: "S3_ENDPOINT and S3_BUCKET"},
		{name: "unknown storage driver", mutate: func(c *Config) { c.Storage.Driver = "gcs" }, want: "unknown STORAGE_DRIVER"},
		{name: "missing export secret", mutate: func(c *Config) { c.Exports.SignedURLSecret = "" }, want: "EXPORTS_SIGNED_URL_SECRET"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
