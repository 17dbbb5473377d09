package config

import "os"

// Config holds all runtime settings, read from the environment.
// cmd/server loads a .env file first, so either works.
type Config struct {
	Addr        string // HTTP listen address
	DataDir     string // FileStore data directory
	DatabaseURL string // when set, the Postgres store is used instead
	JWTSecret   string
	KafkaBroker string // when set, trades are published to Kafka
	KafkaTopic  string
	LogFile     string // when set, logs rotate through this file
	Env         string // "dev" or "prod"
}

// Load reads configuration from the environment with dev defaults.
func Load() *Config {
	return &Config{
		Addr:        getEnv("OB_ADDR", ":8080"),
		DataDir:     getEnv("OB_DATA_DIR", "data"),
		DatabaseURL: getEnv("OB_DATABASE_URL", ""),
		JWTSecret:   getEnv("OB_JWT_SECRET", "dev-only-secret"),
		KafkaBroker: getEnv("OB_KAFKA_BROKER", ""),
		KafkaTopic:  getEnv("OB_KAFKA_TOPIC", "trades"),
		LogFile:     getEnv("OB_LOG_FILE", ""),
		Env:         getEnv("OB_ENV", "dev"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
