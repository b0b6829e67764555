package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	DirectoryBackendPostgres = "postgres"
	DirectoryBackendMemory   = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Storage   StorageConfig
	Directory DirectoryConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Publisher PublisherConfig
	CORS      CORSConfig
	Log       LogConfig
}

// StorageConfig locates the durable schedule record and the shared id sequence.
type StorageConfig struct {
	DataDir      string
	ScheduleFile string
	SequenceFile string
}

// SchedulePath returns the schedule record path under the data directory.
func (s StorageConfig) SchedulePath() string {
	return filepath.Join(s.DataDir, s.ScheduleFile)
}

// SequencePath returns the id sequence path under the data directory.
func (s StorageConfig) SequencePath() string {
	return filepath.Join(s.DataDir, s.SequenceFile)
}

// DirectoryConfig selects where teacher, room and class lookups are served from.
type DirectoryConfig struct {
	Backend      string
	SeedFile     string
	CacheEnabled bool
	CacheTTL     time.Duration
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

// PublisherConfig toggles broadcasting schedule changes to Redis subscribers.
type PublisherConfig struct {
	Enabled bool
	Channel string
	Workers int
	Retries int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Storage = StorageConfig{
		DataDir:      v.GetString("DATA_DIR"),
		ScheduleFile: v.GetString("SCHEDULE_FILE"),
		SequenceFile: v.GetString("SEQUENCE_FILE"),
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("DIRECTORY_BACKEND")))
	if backend != DirectoryBackendPostgres {
		backend = DirectoryBackendMemory
	}
	cfg.Directory = DirectoryConfig{
		Backend:      backend,
		SeedFile:     v.GetString("DIRECTORY_SEED_FILE"),
		CacheEnabled: v.GetBool("ENABLE_DIRECTORY_CACHE"),
		CacheTTL:     parseDuration(v.GetString("DIRECTORY_CACHE_TTL"), 5*time.Minute),
	}

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

	cfg.Publisher = PublisherConfig{
		Enabled: v.GetBool("ENABLE_CHANGE_PUBLISHER"),
		Channel: v.GetString("CHANGE_CHANNEL"),
		Workers: v.GetInt("PUBLISHER_WORKERS"),
		Retries: v.GetInt("PUBLISHER_RETRIES"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("SCHEDULE_FILE", "schedules.json")
	v.SetDefault("SEQUENCE_FILE", "sequence.json")

	v.SetDefault("DIRECTORY_BACKEND", DirectoryBackendMemory)
	v.SetDefault("DIRECTORY_SEED_FILE", "directory.json")
	v.SetDefault("ENABLE_DIRECTORY_CACHE", false)
	v.SetDefault("DIRECTORY_CACHE_TTL", "5m")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admin_panel_sma")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ENABLE_CHANGE_PUBLISHER", false)
	v.SetDefault("CHANGE_CHANNEL", "schedules.changed")
	v.SetDefault("PUBLISHER_WORKERS", 1)
	v.SetDefault("PUBLISHER_RETRIES", 3)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
