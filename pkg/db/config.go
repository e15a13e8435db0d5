package db

import "time"

// Config holds the postgres connection settings, populated from the
// environment.
type Config struct {
	DSN             string        `env:"DATABASE_URL,required"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	MigrationsDir   string        `env:"DB_MIGRATIONS_DIR" envDefault:"migrations"`
}
