// Package config loads process configuration from the environment, with an
// optional .env file for local development. Every value has a default so the
// service can boot with zero configuration against local collaterals.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Gateway
	ListenAddr     string
	WorkerPoolSize int
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Remote services
	GameServiceURL string
	UserServiceURL string

	// Storage
	DatabaseURL string
	RedisAddr   string
	NATSURL     string

	// Security
	JWTSecret string

	// Matchmaking tunables
	TickRate          time.Duration
	BaseTolerance     float64
	ExpansionInterval time.Duration
	ExpansionStep     float64
	AcceptTimeout     time.Duration
	PenaltyDuration   time.Duration
	DefaultElo        int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Gateway
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", 256),
		MaxConnections: getEnvInt("MAX_CONNECTIONS", 100000),
		ReadTimeout:    getEnvDuration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getEnvDuration("WRITE_TIMEOUT", 10*time.Second),

		// Remote services
		GameServiceURL: getEnv("GAME_SERVICE_URL", "http://game:3000"),
		UserServiceURL: getEnv("USER_SERVICE_URL", "http://localhost:3001"),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/matchmaking?sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),

		// Matchmaking tunables (milliseconds/seconds per the protocol contract)
		TickRate:          time.Duration(getEnvInt("TICK_RATE_MS", 1000)) * time.Millisecond,
		BaseTolerance:     getEnvFloat("BASE_TOLERANCE", 50),
		ExpansionInterval: time.Duration(getEnvInt("EXPANSION_INTERVAL_MS", 10000)) * time.Millisecond,
		ExpansionStep:     getEnvFloat("EXPANSION_STEP", 1.0),
		AcceptTimeout:     time.Duration(getEnvInt("MATCH_ACCEPT_TIMEOUT_MS", 15000)) * time.Millisecond,
		PenaltyDuration:   time.Duration(getEnvInt("PENALTY_DURATION_SECONDS", 300)) * time.Second,
		DefaultElo:        getEnvInt("DEFAULT_ELO", 1000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
