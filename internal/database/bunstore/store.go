// Package bunstore implements database.Store on top of bun for the local
// sqlite database and for a shared MySQL/MariaDB hub.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/kozaktomas/kiosk/internal/config"
	"github.com/kozaktomas/kiosk/internal/database"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Store is a bun-backed storage backend.
type Store struct {
	db     *bun.DB
	driver string
}

var _ database.Store = (*Store)(nil)

// Open connects to the configured database, applies pending migrations and
// returns a ready store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	// Every connection to an in-memory sqlite database sees its own empty database.
	if cfg.Driver == DriverSQLite && isMemoryDSN(cfg.URL) {
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: createBunDB(sqlDB, cfg.Driver), driver: cfg.Driver}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func createBunDB(sqlDB *sql.DB, driver string) *bun.DB {
	if driver == DriverMySQL {
		return bun.NewDB(sqlDB, mysqldialect.New())
	}
	return bun.NewDB(sqlDB, sqlitedialect.New())
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// DB returns the underlying bun.DB for direct access.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
