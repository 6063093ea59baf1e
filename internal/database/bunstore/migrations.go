package bunstore

import (
	"context"
	"embed"
	"path"

	"github.com/kozaktomas/kiosk/internal/database/migrate"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

func (s *Store) dialect() migrate.Dialect {
	if s.driver == DriverMySQL {
		return migrate.MySQL
	}
	return migrate.SQLite
}

// MigrationsApplied returns the list of applied migrations
func (s *Store) MigrationsApplied(ctx context.Context) ([]string, error) {
	return migrate.Applied(ctx, s.db.DB)
}

// Migrate applies all pending migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	return migrate.Apply(ctx, s.db.DB, migrationsFS, path.Join("migrations", s.driver), s.dialect())
}
