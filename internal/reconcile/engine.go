// Package reconcile merges parsed email results into the per-user
// shipment records. Merging is idempotent: replaying the same email, or
// receiving the same shipment's updates out of order, converges on the
// same record.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shipment-tracking/internal/database"
	"shipment-tracking/internal/parser"
	"shipment-tracking/internal/status"
)

// ErrNoIdentity is returned when an extraction carries neither a durable
// identifier nor enough signal to anchor a record on its email alone.
var ErrNoIdentity = errors.New("reconcile: extraction has no usable identity")

// Identity key prefixes. Tracking numbers are the strongest key, order
// numbers next, the email message ID last.
const (
	keyTracking = "tn:"
	keyOrder    = "on:"
	keyEmail    = "em:"
)

// MessageMeta is the envelope data of the email a result came from.
type MessageMeta struct {
	MessageID string
	From      string
	Date      time.Time
}

// Engine applies extraction results to the shipment store.
type Engine struct {
	store  *database.ShipmentStore
	rules  status.AgeRules
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine returns an engine writing through the given store.
func NewEngine(store *database.ShipmentStore, rules status.AgeRules, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		rules:  rules,
		logger: logger,
		locks:  map[string]*sync.Mutex{},
	}
}

// lockKey serializes reconciliation per user+identity so two emails about
// the same shipment cannot race an insert against an update. Lock entries
// are tiny and bounded by distinct shipments seen, so they are not reaped.
func (e *Engine) lockKey(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.locks[key]
	if !ok {
		m = &sync.Mutex{}
		e.locks[key] = m
	}
	return m
}

// IdentityKey derives the stable deduplication key for a result. The
// email message ID only qualifies when the extraction names the shipment
// well enough to be worth a record of its own.
func IdentityKey(res *parser.Result, messageID string) (string, error) {
	switch {
	case res.TrackingNumber != "":
		return keyTracking + res.TrackingNumber, nil
	case res.OrderNumber != "":
		return keyOrder + res.OrderNumber, nil
	case res.ProductName != "" || res.Merchant != "":
		if messageID == "" {
			return "", ErrNoIdentity
		}
		return keyEmail + messageID, nil
	}
	return "", ErrNoIdentity
}

// Reconcile merges one extraction result into the user's shipments,
// creating a record when none matches. The returned bool is true when a
// new record was created.
func (e *Engine) Reconcile(ctx context.Context, userID string, res *parser.Result, meta MessageMeta) (*database.Shipment, bool, error) {
	key, err := IdentityKey(res, meta.MessageID)
	if err != nil {
		return nil, false, err
	}

	lock := e.lockKey(userID + "\x00" + key)
	lock.Lock()
	defer lock.Unlock()

	sh, err := e.find(ctx, userID, key, res)
	if err != nil {
		return nil, false, err
	}

	if sh == nil {
		sh = e.newShipment(userID, key, res, meta)
		if err := e.store.Insert(ctx, sh); err != nil {
			return nil, false, fmt.Errorf("creating shipment: %w", err)
		}
		e.logger.Info("shipment created",
			"user", userID, "shipment", sh.ID, "status", sh.Status, "method", res.Method)
		return sh, true, nil
	}

	prev := *sh
	e.merge(sh, res, meta)
	if !mergeChanged(&prev, sh) {
		// Replayed email, nothing new; leave the row (and its
		// updated_at) alone.
		return sh, false, nil
	}
	if err := e.store.Update(ctx, sh); err != nil {
		return nil, false, fmt.Errorf("updating shipment %d: %w", sh.ID, err)
	}
	return sh, false, nil
}

// mergeChanged reports whether merge actually altered the record.
func mergeChanged(prev, cur *database.Shipment) bool {
	return prev.IdentityKey != cur.IdentityKey ||
		prev.EmailID != cur.EmailID ||
		prev.ProductName != cur.ProductName ||
		prev.Merchant != cur.Merchant ||
		prev.Carrier != cur.Carrier ||
		prev.TrackingNumber != cur.TrackingNumber ||
		prev.OrderNumber != cur.OrderNumber ||
		prev.TrackingURL != cur.TrackingURL ||
		prev.Status != cur.Status ||
		prev.ExpectedDelivery != cur.ExpectedDelivery ||
		prev.Summary != cur.Summary ||
		prev.ExtractionMethod != cur.ExtractionMethod ||
		!sameDate(prev.LastEmailDate, cur.LastEmailDate)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// find locates an existing record for the result: by identity key first,
// then by either identifier. The alternate lookups collapse the common
// sequence where an order confirmation (keyed by order number) is later
// followed by a shipping email carrying the tracking number.
func (e *Engine) find(ctx context.Context, userID, key string, res *parser.Result) (*database.Shipment, error) {
	sh, err := e.store.GetByIdentity(ctx, userID, key)
	if err != nil || sh != nil {
		return sh, err
	}
	sh, err = e.store.FindByTrackingNumber(ctx, userID, res.TrackingNumber)
	if err != nil || sh != nil {
		return sh, err
	}
	return e.store.FindByOrderNumber(ctx, userID, res.OrderNumber)
}

func (e *Engine) newShipment(userID, key string, res *parser.Result, meta MessageMeta) *database.Shipment {
	var lastDate *time.Time
	if !meta.Date.IsZero() {
		d := meta.Date
		lastDate = &d
	}
	return &database.Shipment{
		UserID:           userID,
		IdentityKey:      key,
		EmailID:          meta.MessageID,
		ProductName:      res.ProductName,
		Merchant:         res.Merchant,
		Carrier:          res.Carrier,
		TrackingNumber:   res.TrackingNumber,
		OrderNumber:      res.OrderNumber,
		TrackingURL:      res.TrackingURL,
		Status:           res.Status,
		ExpectedDelivery: res.ExpectedDelivery,
		Summary:          res.Summary,
		ExtractionMethod: res.Method,
		LastEmailDate:    lastDate,
	}
}

// merge folds a result into an existing record. Identification fields
// fill only when empty; status moves only forward; the summary is
// replaced only by a more recent or richer one. User decisions
// (status_override, archived) always win over automated data.
func (e *Engine) merge(sh *database.Shipment, res *parser.Result, meta MessageMeta) {
	fill(&sh.ProductName, res.ProductName)
	fill(&sh.Merchant, res.Merchant)
	fill(&sh.Carrier, res.Carrier)
	fill(&sh.OrderNumber, res.OrderNumber)
	fill(&sh.ExpectedDelivery, res.ExpectedDelivery)

	if sh.TrackingNumber == "" && res.TrackingNumber != "" {
		sh.TrackingNumber = res.TrackingNumber
		sh.TrackingURL = res.TrackingURL
		// A tracking number outranks whatever keyed the record so far.
		sh.IdentityKey = keyTracking + res.TrackingNumber
	}
	fill(&sh.TrackingURL, res.TrackingURL)

	newer := !meta.Date.IsZero() &&
		(sh.LastEmailDate == nil || meta.Date.After(*sh.LastEmailDate))

	if !sh.StatusOverride {
		newCode, curCode := status.Code(res.Status), status.Code(sh.Status)
		if status.Rank(newCode) > status.Rank(curCode) ||
			(newer && status.Rank(newCode) == status.Rank(curCode)) {
			sh.Status = res.Status
			sh.ExtractionMethod = res.Method
		}
	}

	if res.Summary != "" && (newer || len(res.Summary) > len(sh.Summary)) {
		sh.Summary = res.Summary
	}
	if newer {
		d := meta.Date
		sh.LastEmailDate = &d
		sh.EmailID = meta.MessageID
		if res.ExpectedDelivery != "" {
			sh.ExpectedDelivery = res.ExpectedDelivery
		}
	}
}

func fill(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

// SweepAges promotes stale statuses across all users using the age rules
// and returns how many shipments changed. It is safe to run repeatedly;
// rows already at their inferred status are untouched.
func (e *Engine) SweepAges(ctx context.Context, now time.Time) (int, error) {
	candidates, err := e.store.ListSweepCandidates(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, sh := range candidates {
		if sh.LastEmailDate == nil {
			continue
		}
		cur := status.Code(sh.Status)
		inferred := status.InferFromAge(*sh.LastEmailDate, now, cur, e.rules)
		if inferred == cur {
			continue
		}
		if err := e.store.SetStatus(ctx, sh.UserID, sh.ID, string(inferred), false); err != nil {
			e.logger.Error("age sweep update failed", "shipment", sh.ID, "error", err)
			continue
		}
		e.logger.Info("status inferred from age",
			"user", sh.UserID, "shipment", sh.ID, "from", cur, "to", inferred)
		changed++
	}
	return changed, nil
}
