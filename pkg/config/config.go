package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string

	// Path of the on-device SQLite store.
	LocalDBPath string

	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDatabase string
	PGSSLMode  string

	// Tax rate in basis points, applied on top of the line subtotal.
	TaxRateBP int64

	// Concurrency limit for catalog lookups during checkout quotes.
	CatalogWorkers int
}

func Load() Config {
	// Best effort; real env always wins over a .env file.
	_ = godotenv.Load()

	return Config{
		AppEnv:         getEnv("APP_ENV", "dev"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LocalDBPath:    getEnv("LOCAL_DB_PATH", "breakfast.db"),
		PGHost:         getEnv("POSTGRES_HOST", "localhost"),
		PGPort:         getEnvInt("POSTGRES_PORT", 5432),
		PGUser:         getEnv("POSTGRES_USER", "postgres"),
		PGPassword:     getEnv("POSTGRES_PASSWORD", ""),
		PGDatabase:     getEnv("POSTGRES_DB", "breakfast"),
		PGSSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
		TaxRateBP:      int64(getEnvInt("TAX_RATE_BP", 1600)),
		CatalogWorkers: getEnvInt("CATALOG_WORKERS", 10),
	}
}

// PostgresDSN builds the connection string for the remote store.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase, c.PGSSLMode)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)

	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}
