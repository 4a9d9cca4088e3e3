package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/saadjs/nibbles/internal/app"
	"github.com/saadjs/nibbles/internal/db"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type OpenOptions struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open connects to the configured backend and brings its schema up to date.
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		path := strings.TrimSpace(opts.SQLitePath)
		if path == "" {
			var err error
			if path, err = app.DefaultDBPath(); err != nil {
				return nil, err
			}
		}
		if err := app.EnsureDBDir(path); err != nil {
			return nil, err
		}
		sqlDB, err := db.Open(path)
		if err != nil {
			return nil, err
		}
		if err := db.ApplyMigrations(sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return NewSQLite(sqlDB), nil
	case DriverPostgres:
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		gdb, err := gorm.Open(postgres.Open(opts.PostgresDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := NewPostgres(gdb)
		if err := MigratePostgres(ctx, gdb); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
