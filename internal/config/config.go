package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Port      string
	JWTSecret string

	// Persistence substrate: "sqlite" (default) or "redis".
	StoreBackend  string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Background location stream. Empty broker URL disables it.
	MQTTBrokerURL string
	MQTTTopic     string

	AutosaveInterval time.Duration
	FixTimeout       time.Duration
}

// Load reads configuration from the environment with sensible defaults.
func Load() *Config {
	return &Config{
		Port:      env("PORT", ":8080"),
		JWTSecret: env("JWT_SECRET", "your-secret-key-change-in-production"),

		StoreBackend:  env("STORE_BACKEND", "sqlite"),
		DBPath:        env("DB_PATH", "./data/tracks/tracks.db"),
		RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
		RedisPassword: env("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		MQTTBrokerURL: env("MQTT_BROKER_URL", ""),
		MQTTTopic:     env("MQTT_TOPIC", "trackrec/location"),

		AutosaveInterval: time.Duration(envInt("AUTOSAVE_INTERVAL_SEC", 10)) * time.Second,
		FixTimeout:       time.Duration(envInt("FIX_TIMEOUT_SEC", 15)) * time.Second,
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
