// Package cmd defines the mailsync CLI: one-shot mailbox syncs and
// maintenance sweeps against the shipment database, sharing the server's
// configuration.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"shipment-tracking/internal/config"
	"shipment-tracking/internal/database"
	"shipment-tracking/internal/status"
)

var configPath string

// RootCmd builds the mailsync command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mailsync",
		Short: "Sync shipping emails into the shipment database",
		Long: `mailsync runs the email ingestion pipeline from the command line:
it searches the configured mailbox for shipping emails, extracts shipment
details, and reconciles them into the shipment database used by the server.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.AddCommand(syncCmd())
	root.AddCommand(sweepCmd())
	return root
}

// environment opens everything a subcommand needs from configuration.
type environment struct {
	cfg    *config.Config
	db     *database.DB
	logger *slog.Logger
	rules  status.AgeRules
}

func newEnvironment() (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return &environment{
		cfg:    cfg,
		db:     db,
		logger: logger,
		rules: status.AgeRules{
			DeliveredAfter: cfg.AgeDelivered(),
			InTransitAfter: cfg.AgeInTransit(),
		},
	}, nil
}

func (e *environment) close() {
	e.db.Close()
}
