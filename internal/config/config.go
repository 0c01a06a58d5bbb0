package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TCPPort     string
	APIPort     string
	APIKey      string
	MetricsPort string

	MongoURI     string
	DatabaseName string
	RedisAddr    string
	NatsURL      string

	LogsDir string

	LoginTimeout time.Duration
	PollInterval time.Duration
}

func Load() Config {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	return Config{
		TCPPort:      getEnv("TCP_PORT", "5027"),
		APIPort:      getEnv("API_PORT", "3000"),
		APIKey:       getEnv("API_KEY", ""),
		MetricsPort:  getEnv("METRICS_PORT", "9090"),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("DATABASE_NAME", "telematics"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		NatsURL:      getEnv("NATS_URL", ""),
		LogsDir:      getEnv("LOGS_DIR", "logs"),
		LoginTimeout: getEnvDuration("LOGIN_TIMEOUT", 15*time.Second),
		PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if n, err := strconv.Atoi(val); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
