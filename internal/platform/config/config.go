package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	ustrings "uniid/pkg/platform/strings"
)

// Server captures process-level configuration. It is built once in main
// and passed down explicitly.
type Server struct {
	Addr          string
	Environment   string
	LogFormat     string
	AdminAPIToken string
	SweepSchedule string
	TxTimeout     time.Duration
	Postgres      PostgresConfig
	Redis         RedisConfig
	Notify        Notify
}

// PostgresConfig describes the identity database. An empty URL selects the
// in-memory stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig describes the optional Redis sequence counter.
type RedisConfig struct {
	URL         string
	PoolSize    int
	DialTimeout time.Duration
}

// Notify configures new-identity notifications. SMTP is used when Host is
// set, Kafka when Brokers is set; with neither, notifications are logged.
type Notify struct {
	Timeout time.Duration
	SMTP    SMTP
	Kafka   Kafka
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Kafka struct {
	Brokers []string
	Topic   string
}

// IsDevelopment reports whether the process runs in a local environment.
func (s Server) IsDevelopment() bool {
	return s.Environment == "" || s.Environment == "development"
}

// FromEnv builds a Server config from environment variables. In
// development a .env file in the working directory is loaded first;
// variables already set win.
func FromEnv() Server {
	if env := os.Getenv("UNIID_ENV"); env == "" || env == "development" {
		_ = godotenv.Load()
	}

	env := getString("UNIID_ENV", "development")
	logFormat := "json"
	if env == "development" {
		logFormat = "text"
	}

	return Server{
		Addr:          getString("UNIID_ADDR", ":8080"),
		Environment:   env,
		LogFormat:     getString("LOG_FORMAT", logFormat),
		AdminAPIToken: os.Getenv("ADMIN_API_TOKEN"),
		SweepSchedule: getString("ARCHIVE_SWEEP_SCHEDULE", "@hourly"),
		TxTimeout:     getDuration("TX_TIMEOUT", 5*time.Second),
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:         os.Getenv("REDIS_URL"),
			PoolSize:    getInt("REDIS_POOL_SIZE", 10),
			DialTimeout: getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Notify: Notify{
			Timeout: getDuration("NOTIFY_TIMEOUT", 10*time.Second),
			SMTP: SMTP{
				Host:     os.Getenv("SMTP_HOST"),
				Port:     getInt("SMTP_PORT", 465),
				Username: os.Getenv("SMTP_USERNAME"),
				Password: os.Getenv("SMTP_PASSWORD"),
				From:     os.Getenv("SMTP_FROM"),
			},
			Kafka: Kafka{
				Brokers: ustrings.SplitList(os.Getenv("KAFKA_BROKERS")),
				Topic:   getString("KAFKA_NOTIFY_TOPIC", "identity.created"),
			},
		},
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
