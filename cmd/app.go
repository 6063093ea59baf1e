package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/kiosk/internal/config"
	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/database/backend"
	"github.com/kozaktomas/kiosk/internal/facematch"
	"github.com/kozaktomas/kiosk/internal/identity"
	"github.com/kozaktomas/kiosk/internal/ledger"
	"github.com/kozaktomas/kiosk/internal/metrics"
)

// app holds the core services shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      database.Store
	identities *identity.Store
	matcher    *facematch.Matcher
	ledger     *ledger.Ledger
	metrics    *metrics.Manager
}

// openApp loads configuration, opens the database and builds the core services.
// The face index is only loaded when withIndex is set.
func openApp(ctx context.Context, withIndex bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger.Debug("opening database", "driver", cfg.Database.Driver)
	store, err := backend.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	m := metrics.NewManager()
	opts := []facematch.Option{
		facematch.WithThreshold(cfg.Match.Threshold),
		facematch.WithDimension(cfg.Embedding.Dim),
		facematch.WithLogger(logger),
	}
	if withIndex && cfg.Match.UseHNSW() {
		opts = append(opts, facematch.WithIndex(database.NewHNSWIndex()))
	}
	matcher := facematch.NewMatcher(store, opts...)
	if withIndex {
		if err := matcher.LoadOrRebuildIndex(ctx, cfg.Match.HNSWIndexPath); err != nil {
			logger.Warn("face index unavailable, matching by linear scan", "error", err)
		}
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		identities: identity.NewStore(store, identity.OptionsFromConfig(cfg)),
		matcher:    matcher,
		ledger:     ledger.New(store, ledger.WithLogger(logger), ledger.WithMetrics(m)),
		metrics:    m,
	}, nil
}

// Close writes out pending attendance records and closes the database.
func (a *app) Close(ctx context.Context) {
	if err := a.ledger.Flush(ctx); err != nil {
		a.logger.Error("attendance records left unsaved", "pending", a.ledger.Pending(), "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
