package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	SANDBOX_NAMESPACE     string
	SANDBOX_IMAGE         string
	SANDBOX_CPU           string
	SANDBOX_MEMORY        string
	SANDBOX_RUNTIME_CLASS string
	SANDBOX_STORAGE_CLASS string
	SANDBOX_STORAGE_SIZE  string
	SANDBOX_TTL           time.Duration
	SANDBOX_READY_TIMEOUT time.Duration

	// Warm pool configuration
	WARM_POOL_ENABLED      bool
	WARM_POOL_NAME         string
	WARM_POOL_TEMPLATE     string
	WARM_POOL_REPLICAS     int
	WARM_POOL_MIN_REPLICAS int
	WARM_POOL_MAX_REPLICAS int

	// Otel
	OTEL_EXPORTER_OTLP_ENDPOINT string
}

func ReadConfig() *Config {
	return &Config{
		SANDBOX_NAMESPACE:     getEnvOrDefault("SANDBOX_NAMESPACE", "warden-sandbox"),
		SANDBOX_IMAGE:         os.Getenv("SANDBOX_IMAGE"),
		SANDBOX_CPU:           getEnvOrDefault("SANDBOX_CPU", "500m"),
		SANDBOX_MEMORY:        getEnvOrDefault("SANDBOX_MEMORY", "1Gi"),
		SANDBOX_RUNTIME_CLASS: os.Getenv("SANDBOX_RUNTIME_CLASS"),
		SANDBOX_STORAGE_CLASS: os.Getenv("SANDBOX_STORAGE_CLASS"),
		SANDBOX_STORAGE_SIZE:  getEnvOrDefault("SANDBOX_STORAGE_SIZE", "1Gi"),
		SANDBOX_TTL:           getDurationOrDefault("SANDBOX_TTL", time.Hour),
		SANDBOX_READY_TIMEOUT: getDurationOrDefault("SANDBOX_READY_TIMEOUT", 2*time.Minute),

		WARM_POOL_ENABLED:      os.Getenv("WARM_POOL_ENABLED") == "true",
		WARM_POOL_NAME:         getEnvOrDefault("WARM_POOL_NAME", "warden-pool"),
		WARM_POOL_TEMPLATE:     os.Getenv("WARM_POOL_TEMPLATE"),
		WARM_POOL_REPLICAS:     getIntOrDefault("WARM_POOL_REPLICAS", 3),
		WARM_POOL_MIN_REPLICAS: getIntOrDefault("WARM_POOL_MIN_REPLICAS", 0),
		WARM_POOL_MAX_REPLICAS: getIntOrDefault("WARM_POOL_MAX_REPLICAS", 10),

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
