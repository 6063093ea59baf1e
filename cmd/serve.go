package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/kiosk/internal/embedding"
	"github.com/kozaktomas/kiosk/internal/i18n"
	"github.com/kozaktomas/kiosk/internal/session"
	"github.com/kozaktomas/kiosk/internal/web"
	"github.com/kozaktomas/kiosk/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk API server",
	Long: `Start the kiosk API server.
The server drives the kiosk screen (capture, confirmation, admin view and
reject/retry), accepts camera frames and credentials, and exposes the
administration endpoints and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	translator, err := i18n.New(a.cfg.Kiosk.Language)
	if err != nil {
		return fmt.Errorf("loading kiosk messages: %w", err)
	}

	if n, err := a.store.CountIdentities(ctx); err == nil {
		a.metrics.SetIdentities(n)
		a.logger.Info("descriptor store ready", "identities", n, "driver", a.cfg.Database.Driver)
	}

	flow := session.NewFlow(a.matcher, a.ledger,
		session.WithThreshold(a.cfg.Match.Threshold),
		session.WithRetryDelay(a.cfg.Kiosk.RetryDelay),
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
	)

	server := web.NewServer(&handlers.Services{
		Config:     a.cfg,
		Store:      a.store,
		Identities: a.identities,
		Matcher:    a.matcher,
		Ledger:     a.ledger,
		Flow:       flow,
		Extractor:  embedding.NewClientFromConfig(&a.cfg.Embedding),
		Translator: translator,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		fmt.Println("\nShutting down...")
		if err := a.matcher.SaveIndex(a.cfg.Match.HNSWIndexPath); err != nil {
			a.logger.Warn("failed to save face index", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Starting kiosk API on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-done
	return nil
}
