package handlers

import (
	"log/slog"

	"github.com/kozaktomas/kiosk/internal/config"
	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/embedding"
	"github.com/kozaktomas/kiosk/internal/facematch"
	"github.com/kozaktomas/kiosk/internal/i18n"
	"github.com/kozaktomas/kiosk/internal/identity"
	"github.com/kozaktomas/kiosk/internal/ledger"
	"github.com/kozaktomas/kiosk/internal/metrics"
	"github.com/kozaktomas/kiosk/internal/session"
)

// Services are the collaborators shared by all handlers. They are built once in cmd.
type Services struct {
	Config     *config.Config
	Store      database.Store
	Identities *identity.Store
	Matcher    *facematch.Matcher
	Ledger     *ledger.Ledger
	Flow       *session.Flow
	Extractor  embedding.Extractor
	Translator *i18n.Translator
	Metrics    *metrics.Manager
	Logger     *slog.Logger
}

func (s *Services) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
