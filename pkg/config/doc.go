// Package config loads typed configuration structs from environment variables.
//
// It wraps `github.com/joho/godotenv` and `github.com/caarlos0/env/v11`:
// optional `.env` files are merged into the process environment (existing
// variables win), then the environment is parsed into any struct annotated
// with `env` and `envDefault` tags.
//
// Unlike a process-wide registry, Load keeps no cache. The command entrypoint
// loads every config once and hands the values to the components that need
// them.
//
// # Usage
//
//	type Config struct {
//		Notify notifications.Config
//		PG     pg.Config
//		Redis  redis.Config
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg, ".env", ".env.local"); err != nil {
//		return err
//	}
//
// # Error Handling
//
// Parsing failures are joined with [ErrParsingConfig]; unreadable env files
// with [ErrLoadingEnvFile]. A nil destination returns [ErrNilPointer].
package config
