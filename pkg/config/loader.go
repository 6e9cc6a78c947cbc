package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by Load when present in the working directory.
const DefaultEnvFile = ".env"

// Load reads DefaultEnvFile into the process environment (without
// overriding variables already set) and then parses environment variables
// into cfg using `env` struct tags.
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	return LoadFiles(cfg, DefaultEnvFile)
}

// LoadFiles is Load with an explicit list of dotenv files. Missing files are
// skipped; malformed ones are an error.
func LoadFiles(cfg any, files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Environment returns APP_ENV, defaulting to "development".
func Environment() string {
	if v := os.Getenv("APP_ENV"); v != "" {
		return v
	}
	return "development"
}
