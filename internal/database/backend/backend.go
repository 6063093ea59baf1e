// Package backend selects and opens the configured storage backend.
package backend

import (
	"context"
	"fmt"

	"github.com/kozaktomas/kiosk/internal/config"
	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/database/bunstore"
	"github.com/kozaktomas/kiosk/internal/database/postgres"
)

// Open connects to the database named by cfg.Driver and applies migrations.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, error) {
	switch cfg.Driver {
	case bunstore.DriverSQLite, bunstore.DriverMySQL:
		return bunstore.Open(ctx, cfg)
	case "postgres", "postgresql":
		return postgres.Open(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}
