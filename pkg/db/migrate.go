package db

import (
	"fmt"

	"github.com/pressly/goose/v3"
)

// Migrate applies all pending goose migrations from cfg.MigrationsDir.
func Migrate(cfg Config) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", cfg.DSN)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := goose.Up(sqlDB, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
