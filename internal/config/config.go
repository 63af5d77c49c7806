// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every setting the server and CLIs read at startup
type Config struct {
	Port    string // PORT (default 8000)
	GinMode string // GIN_MODE

	DatabaseURL    string // DATABASE_URL; sqlite is used when empty
	DatabaseDriver string // DATABASE_DRIVER: pgx (default) or pq
	DataPath       string // DATA_PATH for sqlite (default allocator.db)

	JWTSecret       string // JWT_SECRET
	APIMasterSecret string // API_MASTER_SECRET signs participant keys
	AdminUsername   string // ADMIN_USERNAME (default admin)
	AdminPassword   string // ADMIN_PASSWORD (default admin123)

	AllocationTrials  int // ALLOCATION_TRIALS (default 100)
	AllocationWorkers int // ALLOCATION_WORKERS (default 1)

	LogLevel  string // LOG_LEVEL (default info)
	LogFormat string // LOG_FORMAT: json (default) or console

	KafkaBrokers []string // KAFKA_BROKERS, comma separated
	KafkaTopic   string   // KAFKA_TOPIC
	S3Bucket     string   // S3_BUCKET
	S3Prefix     string   // S3_PREFIX
}

// envPaths are tried in order; the first existing file is loaded
var envPaths = []string{".env", "../.env", "../../.env"}

// LoadDotEnv loads the first .env file found. Variables already set in the
// environment are not overridden.
func LoadDotEnv() {
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Load reads .env (if any) and then the environment
func Load() *Config {
	LoadDotEnv()
	return FromEnv()
}

// FromEnv builds a Config from the current environment with defaults applied
func FromEnv() *Config {
	cfg := &Config{
		Port:            os.Getenv("PORT"),
		GinMode:         os.Getenv("GIN_MODE"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))),
		DataPath:        os.Getenv("DATA_PATH"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		APIMasterSecret: os.Getenv("API_MASTER_SECRET"),
		AdminUsername:   os.Getenv("ADMIN_USERNAME"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		LogFormat:       os.Getenv("LOG_FORMAT"),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      strings.TrimSpace(os.Getenv("KAFKA_TOPIC")),
		S3Bucket:        strings.TrimSpace(os.Getenv("S3_BUCKET")),
		S3Prefix:        strings.TrimSpace(os.Getenv("S3_PREFIX")),
	}

	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "pgx"
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "allocator.db"
	}
	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin"
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = "admin123"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	cfg.AllocationTrials = intEnv("ALLOCATION_TRIALS", 100)
	cfg.AllocationWorkers = intEnv("ALLOCATION_WORKERS", 1)

	return cfg
}

// intEnv parses a positive integer, falling back to def on absence or error
func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
