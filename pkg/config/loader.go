package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Load parses environment variables into v based on its `env` field tags.
//
// The given .env files are loaded first; variables already present in the
// process environment win. Missing files are ignored so the same call works in
// containers where configuration comes from the environment only. With no
// files, the default .env in the working directory is tried.
//
// Nothing is cached: each call reads the environment again, so callers own the
// parsed value and pass it down explicitly.
//
// Example:
//
//	type DatabaseConfig struct {
//		Host string `env:"DB_HOST" envDefault:"localhost"`
//		Port int    `env:"DB_PORT" envDefault:"5432"`
//	}
//
//	var dbConfig DatabaseConfig
//	if err := config.Load(&dbConfig); err != nil {
//		// Handle error
//	}
func Load[T any](v *T, files ...string) error {
	if v == nil {
		return ErrNilPointer
	}

	if err := LoadEnv(files...); err != nil {
		return err
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// This is useful for configurations that are required for the application to start.
func MustLoad[T any](v *T, files ...string) {
	if err := Load(v, files...); err != nil {
		panic(fmt.Sprintf("Failed to load required configuration: %v", err))
	}
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", f, err))
		}
	}
	return nil
}
