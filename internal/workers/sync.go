// Package workers contains the background pipelines: the email sync that
// turns mailbox messages into shipment records, and the periodic age
// sweep that retires stale statuses.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"shipment-tracking/internal/database"
	"shipment-tracking/internal/email"
	"shipment-tracking/internal/parser"
	"shipment-tracking/internal/reconcile"
	"shipment-tracking/internal/status"
)

// SyncConfig carries the tunables for one sync worker.
type SyncConfig struct {
	Lookback        time.Duration
	MaxResults      int64
	MaxContentChars int
	AgeRules        status.AgeRules
	// DryRun parses everything but writes nothing; used to preview what
	// a sync would do against a mailbox.
	DryRun bool
}

// SyncStats summarizes one sync run.
type SyncStats struct {
	Searched   int `json:"searched"`
	Skipped    int `json:"skipped"`
	Irrelevant int `json:"irrelevant"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
	Generative int `json:"generative_calls"`
}

// SyncWorker runs the full pipeline for a mailbox: search, pre-filter,
// extract, normalize, reconcile.
type SyncWorker struct {
	mail       email.MailClient
	generative parser.GenerativeExtractor
	engine     *reconcile.Engine
	processed  *database.ProcessedEmailStore
	prefilter  *parser.PreFilter
	cfg        SyncConfig
	logger     *slog.Logger

	totalProcessed atomic.Int64
	totalFailed    atomic.Int64
}

// NewSyncWorker wires the pipeline. A nil generative extractor degrades
// to deterministic extraction only.
func NewSyncWorker(mail email.MailClient, generative parser.GenerativeExtractor,
	engine *reconcile.Engine, processed *database.ProcessedEmailStore,
	prefilter *parser.PreFilter, cfg SyncConfig, logger *slog.Logger) *SyncWorker {
	if generative == nil {
		generative = parser.NoOpExtractor{}
	}
	return &SyncWorker{
		mail:       mail,
		generative: generative,
		engine:     engine,
		processed:  processed,
		prefilter:  prefilter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Totals returns lifetime counters across runs.
func (w *SyncWorker) Totals() (processed, failed int64) {
	return w.totalProcessed.Load(), w.totalFailed.Load()
}

// SyncUser processes the user's mailbox once. Individual message failures
// are isolated and counted; only mailbox-level errors (search failure,
// expired auth) abort the run.
func (w *SyncWorker) SyncUser(ctx context.Context, userID string) (*SyncStats, error) {
	query := email.BuildSearchQuery(w.cfg.Lookback)
	ids, err := w.mail.Search(ctx, query, w.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("searching mailbox: %w", err)
	}

	stats := &SyncStats{Searched: len(ids)}
	w.logger.Info("sync started", "user", userID, "candidates", len(ids), "dry_run", w.cfg.DryRun)

	var batch []*email.RawMessage
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !w.cfg.DryRun {
			done, err := w.processed.IsProcessed(ctx, userID, id)
			if err != nil {
				return stats, err
			}
			if done {
				stats.Skipped++
				continue
			}
		}
		msg, err := w.mail.Fetch(ctx, id)
		if err != nil {
			if errors.Is(err, email.ErrAuthExpired) {
				return stats, err
			}
			stats.Failed++
			w.totalFailed.Add(1)
			w.logger.Error("message fetch failed", "user", userID, "message", id, "error", err)
			if !w.cfg.DryRun {
				w.mark(ctx, userID, id, database.OutcomeFailed, nil)
			}
			continue
		}
		batch = append(batch, msg)
	}

	// Mail providers list newest first. Process oldest to newest so
	// fill-only-if-empty merges take each field from its earliest
	// mention, whatever order the provider returned.
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Date.Before(batch[j].Date) })

	for _, msg := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := w.syncMessage(ctx, userID, msg, stats); err != nil {
			stats.Failed++
			w.totalFailed.Add(1)
			w.logger.Error("message sync failed", "user", userID, "message", msg.ID, "error", err)
			if !w.cfg.DryRun {
				w.mark(ctx, userID, msg.ID, database.OutcomeFailed, nil)
			}
		}
		w.totalProcessed.Add(1)
	}

	w.logger.Info("sync finished", "user", userID,
		"created", stats.Created, "updated", stats.Updated,
		"irrelevant", stats.Irrelevant, "skipped", stats.Skipped,
		"failed", stats.Failed, "generative", stats.Generative)
	return stats, nil
}

func (w *SyncWorker) syncMessage(ctx context.Context, userID string, msg *email.RawMessage, stats *SyncStats) error {
	id := msg.ID

	verdict := w.prefilter.Classify(msg.Subject, msg.From, msg.Snippet+" "+msg.BodyText)
	if !verdict.Relevant {
		stats.Irrelevant++
		if !w.cfg.DryRun {
			w.mark(ctx, userID, id, database.OutcomeIrrelevant, nil)
		}
		return nil
	}

	res := w.extract(ctx, msg, stats)
	parser.Normalize(res, msg.From, msg.Date, time.Now().UTC(), w.cfg.AgeRules)

	if w.cfg.DryRun {
		w.logger.Info("dry run extraction", "message", id,
			"status", res.Status, "tracking", res.TrackingNumber, "method", res.Method)
		return nil
	}

	sh, created, err := w.engine.Reconcile(ctx, userID, res, reconcile.MessageMeta{
		MessageID: id,
		From:      msg.From,
		Date:      msg.Date,
	})
	if errors.Is(err, reconcile.ErrNoIdentity) {
		stats.Skipped++
		w.mark(ctx, userID, id, database.OutcomeSkipped, nil)
		return nil
	}
	if err != nil {
		return err
	}

	if created {
		stats.Created++
		w.mark(ctx, userID, id, database.OutcomeCreated, &sh.ID)
	} else {
		stats.Updated++
		w.mark(ctx, userID, id, database.OutcomeUpdated, &sh.ID)
	}
	return nil
}

// extract runs deterministic extraction and, when it comes back thin,
// asks the generative extractor to do better. The deterministic result is
// always the fallback: a generative failure never loses what the patterns
// found.
func (w *SyncWorker) extract(ctx context.Context, msg *email.RawMessage, stats *SyncStats) *parser.Result {
	cleaned := parser.CleanContent(msg.Body(), w.cfg.MaxContentChars)
	res := parser.ExtractDeterministic(msg.Subject, msg.From, cleaned)

	if !parser.NeedsFallback(res) || !w.generative.Available() {
		return res
	}

	stats.Generative++
	gen, err := w.generative.Extract(ctx, parser.EmailContent{
		Subject: msg.Subject,
		From:    msg.From,
		Body:    cleaned,
	})
	if err != nil {
		w.logger.Warn("generative extraction failed, using pattern result",
			"message", msg.ID, "error", err)
		res.Method = parser.MethodFallback
		return res
	}

	// Identifiers the patterns found with high confidence beat a model
	// that missed them.
	if gen.TrackingNumber == "" {
		gen.TrackingNumber = res.TrackingNumber
	}
	if gen.OrderNumber == "" {
		gen.OrderNumber = res.OrderNumber
	}
	if gen.Carrier == "" {
		gen.Carrier = res.Carrier
	}
	gen.Method = parser.MethodGenerative
	return gen
}

func (w *SyncWorker) mark(ctx context.Context, userID, id, outcome string, shipmentID *int64) {
	if err := w.processed.Mark(ctx, userID, id, outcome, shipmentID); err != nil {
		w.logger.Error("recording processed email failed",
			"user", userID, "message", id, "error", err)
	}
}
