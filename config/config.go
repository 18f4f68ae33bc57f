package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type AppConfig struct {
	App struct {
		Name string
		Port string
		Env  string
	}

	Auth struct {
		JWTSecret string
	}

	Redis struct {
		Enabled  bool
		Host     string
		Port     int
		Password string
		DB       int
	}

	Kafka struct {
		Enabled bool
		Brokers []string
		GroupID string
	}

	Postgres struct {
		DSN          string
		EnsureSchema bool
	}

	Leaderboard struct {
		Limit        int
		StoreTimeout time.Duration
	}

	RateLimit struct {
		Requests       int
		Window         time.Duration
		MessagesPerSec float64
		MessageBurst   int
	}

	Log struct {
		Level string
		File  string
	}

	StatusSweep struct {
		Enabled  bool
		Schedule string
		Timeout  time.Duration
	}
}

// InitConfig reads the environment. In dev mode a local .env file is loaded
// first; variables already set in the environment win.
func InitConfig(devMode bool) *AppConfig {
	if devMode {
		if err := godotenv.Load(); err != nil {
			log.Warn().Err(err).Msg("Error loading .env file")
		}
	}

	cfg := &AppConfig{}

	cfg.App.Name = getEnv("APP_NAME", "cdex-live-service")
	cfg.App.Port = getEnv("PORT", "6001")
	cfg.App.Env = getEnv("APP_ENV", "production")

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")

	cfg.Redis.Enabled = getEnvAsBool("REDIS_ENABLED", true)
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvAsInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	cfg.Kafka.Enabled = getEnvAsBool("KAFKA_ENABLED", true)
	cfg.Kafka.Brokers = getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"})
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", "cdex-live-service")

	cfg.Postgres.DSN = getEnv("DATABASE_URL", "")
	cfg.Postgres.EnsureSchema = getEnvAsBool("DATABASE_ENSURE_SCHEMA", false)

	cfg.Leaderboard.Limit = getEnvAsInt("LEADERBOARD_LIMIT", 50)
	cfg.Leaderboard.StoreTimeout = getEnvAsDuration("LEADERBOARD_STORE_TIMEOUT", 5*time.Second)

	cfg.RateLimit.Requests = getEnvAsInt("RATE_LIMIT_REQUESTS", 100)
	cfg.RateLimit.Window = getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute)
	cfg.RateLimit.MessagesPerSec = getEnvAsFloat("WS_MESSAGES_PER_SECOND", 20)
	cfg.RateLimit.MessageBurst = getEnvAsInt("WS_MESSAGE_BURST", 40)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.File = getEnv("LOG_FILE", "")

	cfg.StatusSweep.Enabled = getEnvAsBool("STATUS_SWEEP_ENABLED", true)
	cfg.StatusSweep.Schedule = getEnv("STATUS_SWEEP_SCHEDULE", "@every 15s")
	cfg.StatusSweep.Timeout = getEnvAsDuration("STATUS_SWEEP_TIMEOUT", 10*time.Second)

	return cfg
}

func (c *AppConfig) IsDevelopment() bool {
	return c.App.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
		return fallback
	}
	return n
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid number, using default")
		return fallback
	}
	return f
}

func getEnvAsBool(key string, fallback bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid boolean, using default")
		return fallback
	}
	return b
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
		return fallback
	}
	return d
}

func getEnvAsList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
