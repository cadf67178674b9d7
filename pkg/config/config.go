package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Revocation backends.
const (
	RevocationRedis  = "redis"
	RevocationMemory = "memory"
)

// Blob storage drivers.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

const minProductionSecretLen = 32

type Config struct {
	Env            string
	Port           int
	APIPrefix      string
	RequestTimeout time.Duration

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Storage   StorageConfig
	Exports   ExportsConfig
	Analytics AnalyticsConfig
	Downloads DownloadsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds signing material for the two token kinds.
type JWTConfig struct {
	AccessSecret      string
	RefreshSecret     string
	Issuer            string
	AccessExpiration  time.Duration
	RefreshExpiration time.Duration
	// RevocationStore selects where logged-out access tokens are tracked.
	RevocationStore string
	// RevocationSweep is how often the in-memory store drops expired entries.
	RevocationSweep time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects and configures the blob backend for uploaded resources.
type StorageConfig struct {
	Driver         string
	Dir            string
	MaxUploadBytes int64
	S3             S3Config
}

// S3Config configures an S3-compatible endpoint.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// ExportsConfig controls where analytics exports land and how long their links live.
type ExportsConfig struct {
	Dir             string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// AnalyticsConfig governs caching for analytics endpoints.
type AnalyticsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// DownloadsConfig sizes the worker pool that records completed downloads.
type DownloadsConfig struct {
	Workers    int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.RequestTimeout = parseDuration(v.GetString("REQUEST_TIMEOUT"), 30*time.Second)

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		AccessSecret:      v.GetString("JWT_ACCESS_SECRET"),
		RefreshSecret:     v.GetString("JWT_REFRESH_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		AccessExpiration:  parseDuration(v.GetString("JWT_ACCESS_EXPIRATION"), time.Hour),
		RefreshExpiration: parseDuration(v.GetString("JWT_REFRESH_EXPIRATION"), 7*24*time.Hour),
		RevocationStore:   strings.ToLower(v.GetString("REVOCATION_STORE")),
		RevocationSweep:   parseDuration(v.GetString("REVOCATION_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("STORAGE_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Driver:         strings.ToLower(v.GetString("STORAGE_DRIVER")),
		Dir:            v.GetString("STORAGE_DIR"),
		MaxUploadBytes: maxUpload,
		S3: S3Config{
			Endpoint:       v.GetString("S3_ENDPOINT"),
			Region:         v.GetString("S3_REGION"),
			Bucket:         v.GetString("S3_BUCKET"),
			AccessKey:      v.GetString("S3_ACCESS_KEY"),
			SecretKey:      v.GetString("S3_SECRET_KEY"),
			ForcePathStyle: v.GetBool("S3_FORCE_PATH_STYLE"),
		},
	}

	cfg.Exports = ExportsConfig{
		Dir:             v.GetString("EXPORTS_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
	}

	cfg.Analytics = AnalyticsConfig{
		CacheEnabled: v.GetBool("ANALYTICS_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Downloads = DownloadsConfig{
		Workers:    v.GetInt("DOWNLOAD_WORKERS"),
		MaxRetries: v.GetInt("DOWNLOAD_MAX_RETRIES"),
	}

	return cfg
}

// Validate rejects configurations that must never reach a running server.
func (c *Config) Validate() error {
	var problems []string

	if c.JWT.AccessSecret == "" {
		problems = append(problems, "JWT_ACCESS_SECRET is required")
	}
	if c.JWT.RefreshSecret == "" {
		problems = append(problems, "JWT_REFRESH_SECRET is required")
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		problems = append(problems, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.Env == EnvProduction {
		if len(c.JWT.AccessSecret) < minProductionSecretLen || len(c.JWT.RefreshSecret) < minProductionSecretLen {
			problems = append(problems, fmt.Sprintf("JWT secrets must be at least %d bytes in production", minProductionSecretLen))
		}
		if c.JWT.RevocationStore == RevocationMemory {
			problems = append(problems, "REVOCATION_STORE=memory is not allowed in production")
		}
	}
	if c.Exports.SignedURLSecret == "" {
		problems = append(problems, "EXPORTS_SIGNED_URL_SECRET is required")
	}

	switch c.JWT.RevocationStore {
	case RevocationRedis, RevocationMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown REVOCATION_STORE %q", c.JWT.RevocationStore))
	}

	switch c.Storage.Driver {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Endpoint == "" {
			problems = append(problems, "S3_ENDPOINT and S3_BUCKET are required for STORAGE_DRIVER=s3")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3000)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "analytics_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	// Secrets deliberately have no defaults.
	v.SetDefault("JWT_ISSUER", "campus-analytics")
	v.SetDefault("JWT_ACCESS_EXPIRATION", "1h")
	v.SetDefault("JWT_REFRESH_EXPIRATION", "168h")
	v.SetDefault("REVOCATION_STORE", RevocationRedis)
	v.SetDefault("REVOCATION_SWEEP_INTERVAL", "1m")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("STORAGE_DIR", "./uploads/resources")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 50*1024*1024)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_FORCE_PATH_STYLE", true)

	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")

	v.SetDefault("ANALYTICS_CACHE_ENABLED", true)
	v.SetDefault("ANALYTICS_CACHE_TTL", "5m")

	v.SetDefault("DOWNLOAD_WORKERS", 2)
	v.SetDefault("DOWNLOAD_MAX_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
