package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	BulkOps   BulkOpsConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes candidate placement and collaborator retry behaviour.
type SchedulerConfig struct {
	ProposalTTL       time.Duration
	PlacementRetries  int
	SuggestionHorizon int
	FetchRetries      int
	FetchBackoff      time.Duration
}

// BulkOpsConfig governs the bulk rescheduling queue and its workers.
type BulkOpsConfig struct {
	Workers        int
	QueueDepth     int
	MaxConcurrency int
	RetryBudget    int
	ProgressTTL    time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		ProposalTTL:       parseDuration(v.GetString("SCHEDULER_PROPOSAL_TTL"), 30*time.Minute),
		PlacementRetries:  v.GetInt("SCHEDULER_PLACEMENT_RETRIES"),
		SuggestionHorizon: v.GetInt("SCHEDULER_SUGGESTION_HORIZON_DAYS"),
		FetchRetries:      v.GetInt("SCHEDULER_FETCH_RETRIES"),
		FetchBackoff:      parseDuration(v.GetString("SCHEDULER_FETCH_BACKOFF"), 200*time.Millisecond),
	}

	cfg.BulkOps = BulkOpsConfig{
		Workers:        v.GetInt("BULK_WORKERS"),
		QueueDepth:     v.GetInt("BULK_QUEUE_DEPTH"),
		MaxConcurrency: v.GetInt("BULK_MAX_CONCURRENCY"),
		RetryBudget:    v.GetInt("BULK_RETRY_BUDGET"),
		ProgressTTL:    parseDuration(v.GetString("BULK_PROGRESS_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "therapy_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_PROPOSAL_TTL", "30m")
	v.SetDefault("SCHEDULER_PLACEMENT_RETRIES", 3)
	v.SetDefault("SCHEDULER_SUGGESTION_HORIZON_DAYS", 7)
	v.SetDefault("SCHEDULER_FETCH_RETRIES", 3)
	v.SetDefault("SCHEDULER_FETCH_BACKOFF", "200ms")

	v.SetDefault("BULK_WORKERS", 2)
	v.SetDefault("BULK_QUEUE_DEPTH", 16)
	v.SetDefault("BULK_MAX_CONCURRENCY", 4)
	v.SetDefault("BULK_RETRY_BUDGET", 3)
	v.SetDefault("BULK_PROGRESS_TTL", "1h")
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
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
