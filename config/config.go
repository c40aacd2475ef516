// Package config loads process configuration from the environment (with
// an optional .env file) and hands the core explicit config structs. Env
// lookups happen here and nowhere else.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"pricepipe/loader"
)

// Config holds all application configuration.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresTable    string

	RawDir     string
	StagingDir string
	Manifest   string

	LogLevel string
}

// Load reads the .env file (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("PGHOST", "localhost"),
		PostgresPort:     getEnv("PGPORT", "5433"),
		PostgresUser:     getEnv("PGUSER", "hpt_owner"),
		PostgresPassword: getEnv("PGPASSWORD", ""),
		PostgresDB:       getEnv("PGDATABASE", "hpt_db"),
		PostgresSSLMode:  getEnv("PGSSLMODE", "disable"),
		PostgresTable:    getEnv("PGTABLE", "hpt.standard_charge"),

		RawDir:     getEnv("RAW_DIR", "data/raw"),
		StagingDir: getEnv("STAGING_DIR", "data/staging"),
		Manifest:   getEnv("SOURCES_MANIFEST", "docs/sources.csv"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// LoaderConfig builds the explicit store config the loader constructor
// requires; the loader itself validates it eagerly.
func (c *Config) LoaderConfig() loader.Config {
	return loader.Config{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
		Database: c.PostgresDB,
		SSLMode:  c.PostgresSSLMode,
		Table:    c.PostgresTable,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
