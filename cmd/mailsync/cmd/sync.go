package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shipment-tracking/internal/email"
	"shipment-tracking/internal/parser"
	"shipment-tracking/internal/reconcile"
	"shipment-tracking/internal/workers"
)

func syncCmd() *cobra.Command {
	var (
		user   string
		dryRun bool
	)

	c := &cobra.Command{
		Use:   "sync",
		Short: "Run one mailbox sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			cfg := env.cfg

			if cfg.Gmail.ClientID == "" {
				return fmt.Errorf("gmail credentials are not configured")
			}
			mail, err := email.NewGmailClient(ctx, email.GmailConfig{
				ClientID:     cfg.Gmail.ClientID,
				ClientSecret: cfg.Gmail.ClientSecret,
				RefreshToken: cfg.Gmail.RefreshToken,
			})
			if err != nil {
				return err
			}

			var generative parser.GenerativeExtractor = parser.NoOpExtractor{}
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
				}, env.logger)
				if err != nil {
					return err
				}
				defer gem.Close()
				generative = gem
			}

			engine := reconcile.NewEngine(env.db.Shipments, env.rules, env.logger)
			worker := workers.NewSyncWorker(mail, generative, engine, env.db.Processed,
				parser.NewPreFilter(cfg.Heuristics.PrefilterMinMatches),
				workers.SyncConfig{
					Lookback:        cfg.Gmail.Lookback,
					MaxResults:      cfg.Gmail.MaxResults,
					MaxContentChars: cfg.Gemini.MaxContentChars,
					AgeRules:        env.rules,
					DryRun:          dryRun,
				}, env.logger)

			stats, err := worker.SyncUser(ctx, user)
			if err != nil {
				return err
			}

			fmt.Printf("Searched:   %d\n", stats.Searched)
			fmt.Printf("Created:    %d\n", stats.Created)
			fmt.Printf("Updated:    %d\n", stats.Updated)
			fmt.Printf("Irrelevant: %d\n", stats.Irrelevant)
			fmt.Printf("Skipped:    %d\n", stats.Skipped)
			fmt.Printf("Failed:     %d\n", stats.Failed)
			fmt.Printf("Model calls: %d\n", stats.Generative)
			return nil
		},
	}

	c.Flags().StringVar(&user, "user", "me", "user ID to sync shipments for")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "parse emails without writing anything")
	return c
}
