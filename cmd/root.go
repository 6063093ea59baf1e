package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/kiosk/internal/config"
	"github.com/kozaktomas/kiosk/internal/logging"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Face, PIN and ID number attendance kiosk",
	Long: `Kiosk identifies people by face embedding, PIN or ID number and keeps
an attendance ledger in a local database. Use "serve" to run the API the
kiosk screen talks to, and the other commands to manage enrolled people
and attendance records from a terminal.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and installs the configured logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg := config.Load()
	logger, err := logging.Setup(&cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring logging: %w", err)
	}
	return cfg, logger, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
