package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"shipment-tracking/internal/config"
	"shipment-tracking/internal/database"
	"shipment-tracking/internal/email"
	"shipment-tracking/internal/handlers"
	"shipment-tracking/internal/parser"
	"shipment-tracking/internal/reconcile"
	"shipment-tracking/internal/server"
	"shipment-tracking/internal/status"
	"shipment-tracking/internal/workers"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rules := status.AgeRules{
		DeliveredAfter: cfg.AgeDelivered(),
		InTransitAfter: cfg.AgeInTransit(),
	}
	engine := reconcile.NewEngine(db.Shipments, rules, logger)

	var generative parser.GenerativeExtractor = parser.NoOpExtractor{}
	var images handlers.ImageExtractor
	if cfg.Gemini.Enabled() {
		gem, err := parser.NewGeminiExtractor(ctx, parser.GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			MaxPerMinute:    cfg.Gemini.MaxPerMinute,
			MinInterval:     cfg.Gemini.MinInterval,
			MaxFailures:     cfg.Gemini.MaxFailures,
			Cooldown:        cfg.Gemini.Cooldown,
			MaxContentChars: cfg.Gemini.MaxContentChars,
		}, logger)
		if err != nil {
			return err
		}
		defer gem.Close()
		generative = gem
		images = gem
		logger.Info("generative extraction enabled", "model", cfg.Gemini.Model)
	} else {
		logger.Info("generative extraction disabled, using pattern extraction only")
	}

	var sync *workers.SyncWorker
	if cfg.Gmail.ClientID != "" {
		mail, err := email.NewGmailClient(ctx, email.GmailConfig{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
		})
		if err != nil {
			return err
		}
		sync = workers.NewSyncWorker(mail, generative, engine, db.Processed,
			parser.NewPreFilter(cfg.Heuristics.PrefilterMinMatches),
			workers.SyncConfig{
				Lookback:        cfg.Gmail.Lookback,
				MaxResults:      cfg.Gmail.MaxResults,
				MaxContentChars: cfg.Gemini.MaxContentChars,
				AgeRules:        rules,
			}, logger)
		logger.Info("email sync enabled", "lookback", cfg.Gmail.Lookback)
	} else {
		logger.Info("email sync disabled, no gmail credentials configured")
	}

	if cfg.Sweep.Enabled {
		sweep := workers.NewAgeSweepWorker(engine, db.Processed,
			cfg.Sweep.Interval, 2*cfg.Gmail.Lookback, logger)
		go sweep.Run(ctx)
	}

	shipmentHandler := handlers.NewShipmentHandler(db, engine, sync, images, rules)
	healthHandler := handlers.NewHealthHandler(db)

	srv := server.New(cfg.Server, shipmentHandler, healthHandler, logger)
	return srv.Run(ctx)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
