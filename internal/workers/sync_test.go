package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracking/internal/database"
	"shipment-tracking/internal/email"
	"shipment-tracking/internal/parser"
	"shipment-tracking/internal/reconcile"
	"shipment-tracking/internal/status"
)

type fakeMail struct {
	messages  map[string]*email.RawMessage
	order     []string
	searchErr error
	fetchErr  map[string]error
}

func (f *fakeMail) Search(ctx context.Context, query string, max int64) ([]string, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.order, nil
}

func (f *fakeMail) Fetch(ctx context.Context, id string) (*email.RawMessage, error) {
	if err, ok := f.fetchErr[id]; ok {
		return nil, err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("no such message")
	}
	return m, nil
}

type fakeGenerative struct {
	result    *parser.Result
	err       error
	available bool
	calls     int
}

func (f *fakeGenerative) Extract(ctx context.Context, em parser.EmailContent) (*parser.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := *f.result
	return &out, nil
}

func (f *fakeGenerative) Available() bool { return f.available }

func testWorker(t *testing.T, mail *fakeMail, gen parser.GenerativeExtractor, cfg SyncConfig) (*SyncWorker, *database.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := reconcile.NewEngine(db.Shipments, status.DefaultAgeRules(), logger)
	if cfg.AgeRules == (status.AgeRules{}) {
		cfg.AgeRules = status.DefaultAgeRules()
	}
	w := NewSyncWorker(mail, gen, engine, db.Processed, parser.NewPreFilter(2), cfg, logger)
	return w, db
}

func shippedMessage(id, tracking string, date time.Time) *email.RawMessage {
	return &email.RawMessage{
		ID:      id,
		Subject: "Your order has been shipped",
		From:    `"Myntra" <noreply@myntra.com>`,
		Date:    date,
		Snippet: "Your order of Canvas sneakers has been shipped",
		BodyText: "Your order of Canvas sneakers has been dispatched via Delhivery.\n" +
			"AWB No: " + tracking + "\nTrack your shipment online.",
	}
}

func TestSyncUserCreatesShipments(t *testing.T) {
	date := time.Now().UTC().Add(-24 * time.Hour)
	mail := &fakeMail{
		order: []string{"m1", "m2"},
		messages: map[string]*email.RawMessage{
			"m1": shippedMessage("m1", "1490312845126", date),
			"m2": {
				ID: "m2", Subject: "Team lunch on Friday?",
				From: "colleague@example.com", Date: date,
				BodyText: "Thinking noodles.",
			},
		},
	}
	w, db := testWorker(t, mail, nil, SyncConfig{Lookback: 14 * 24 * time.Hour})

	stats, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Searched)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Irrelevant)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Generative, "rich pattern result needs no model call")

	shipments, err := db.Shipments.ListByUser(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	sh := shipments[0]
	assert.Equal(t, "1490312845126", sh.TrackingNumber)
	assert.Equal(t, "Delhivery", sh.Carrier)
	assert.Equal(t, "Myntra", sh.Merchant)
	assert.Equal(t, "Canvas sneakers", sh.ProductName)
	assert.Equal(t, string(status.Shipped), sh.Status)
	assert.Equal(t, parser.MethodPattern, sh.ExtractionMethod)
}

func TestSyncUserSecondRunSkips(t *testing.T) {
	date := time.Now().UTC().Add(-24 * time.Hour)
	mail := &fakeMail{
		order:    []string{"m1"},
		messages: map[string]*email.RawMessage{"m1": shippedMessage("m1", "1490312845126", date)},
	}
	w, _ := testWorker(t, mail, nil, SyncConfig{Lookback: 14 * 24 * time.Hour})

	_, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)

	stats, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Created)
	assert.Zero(t, stats.Updated)
}

func TestSyncUserGenerativeFallback(t *testing.T) {
	date := time.Now().UTC().Add(-24 * time.Hour)
	// Relevant but pattern-poor: no identifier, no product.
	mail := &fakeMail{
		order: []string{"m1"},
		messages: map[string]*email.RawMessage{
			"m1": {
				ID: "m1", Subject: "Out for delivery",
				From: "updates@unknownshop.example", Date: date,
				BodyText: "Good news! Your package is out for delivery and will arrive today.",
			},
		},
	}
	gen := &fakeGenerative{
		available: true,
		result: &parser.Result{
			ProductName:    "Ceramic mug set",
			Merchant:       "Unknownshop",
			TrackingNumber: "SF123456789012",
			Status:         "out for delivery",
			Summary:        "Your mugs arrive today.",
		},
	}
	w, db := testWorker(t, mail, gen, SyncConfig{Lookback: 14 * 24 * time.Hour})

	stats, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Generative)
	assert.Equal(t, 1, gen.calls)

	shipments, err := db.Shipments.ListByUser(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, "Ceramic mug set", shipments[0].ProductName)
	assert.Equal(t, string(status.OutForDelivery), shipments[0].Status)
	assert.Equal(t, parser.MethodGenerative, shipments[0].ExtractionMethod)
}

func TestSyncUserGenerativeFailureKeepsPatternResult(t *testing.T) {
	date := time.Now().UTC().Add(-24 * time.Hour)
	mail := &fakeMail{
		order: []string{"m1"},
		messages: map[string]*email.RawMessage{
			"m1": {
				ID: "m1", Subject: "Shipment update",
				From: "noreply@shop.example", Date: date,
				BodyText: "Your shipment has been dispatched and will reach you soon.",
			},
		},
	}
	gen := &fakeGenerative{available: true, err: errors.New("model unavailable")}
	w, db := testWorker(t, mail, gen, SyncConfig{Lookback: 14 * 24 * time.Hour})

	stats, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created, "generative failure must not drop the email")
	assert.Equal(t, 1, gen.calls)

	shipments, err := db.Shipments.ListByUser(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, "Shop", shipments[0].Merchant)
	assert.Equal(t, string(status.Shipped), shipments[0].Status)
	assert.Equal(t, parser.MethodFallback, shipments[0].ExtractionMethod)
}

func TestSyncUserSkipsGenerativeWhenPatternsSuffice(t *testing.T) {
	date := time.Now().UTC().Add(-24 * time.Hour)
	mail := &fakeMail{
		order: []string{"m1"},
		messages: map[string]*email.RawMessage{
			// Tracking number present but no product or merchant in the
			// body: an identifier alone keeps the model out of the loop.
			"m1": {
				ID: "m1", Subject: "Shipment update",
				From: "noreply@shop.example", Date: date,
				BodyText: "Your shipment has been dispatched. Tracking Number: AB123456789",
			},
		},
	}
	gen := &fakeGenerative{available: true, result: &parser.Result{ProductName: "Should not be used"}}
	w, db := testWorker(t, mail, gen, SyncConfig{Lookback: 14 * 24 * time.Hour})

	stats, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Zero(t, stats.Generative)
	assert.Zero(t, gen.calls)

	shipments, err := db.Shipments.ListByUser(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, "AB123456789", shipments[0].TrackingNumber)
	assert.Equal(t, parser.MethodPattern, shipments[0].ExtractionMethod)
}

func TestSyncUserProcessesOldestFirst(t *testing.T) {
	now := time.Now().UTC()
	old := shippedMessage("m_old", "1490312845126", now.Add(-72*time.Hour))
	old.BodyText = "Your order of Walnut bookshelf has been dispatched via Delhivery.\n" +
		"AWB No: 1490312845126"
	recent := shippedMessage("m_new", "1490312845126", now.Add(-24*time.Hour))
	recent.BodyText = "Your order of Bookshelf has been dispatched via Delhivery.\n" +
		"AWB No: 1490312845126"

	// The provider lists newest first.
	mail := &fakeMail{
		order:    []string{"m_new", "m_old"},
		messages: map[string]*email.RawMessage{"m_old": old, "m_new": recent},
	}
	w, db := testWorker(t, mail, nil, SyncConfig{Lookback: 14 * 24 * time.Hour})

	stats, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Updated)

	shipments, err := db.Shipments.ListByUser(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	sh := shipments[0]
	assert.Equal(t, "Walnut bookshelf", sh.ProductName,
		"fields fill from the oldest email regardless of mailbox order")
	assert.Equal(t, "m_new", sh.EmailID, "envelope data tracks the newest email")
}

func TestSyncUserErrorIsolation(t *testing.T) {
	date := time.Now().UTC().Add(-24 * time.Hour)
	mail := &fakeMail{
		order: []string{"bad", "m1"},
		messages: map[string]*email.RawMessage{
			"m1": shippedMessage("m1", "1490312845126", date),
		},
		fetchErr: map[string]error{"bad": errors.New("transient fetch error")},
	}
	w, _ := testWorker(t, mail, nil, SyncConfig{Lookback: 14 * 24 * time.Hour})

	stats, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err, "one bad message must not abort the batch")
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Created)

	// Failed messages stay retryable.
	mail.fetchErr = nil
	mail.messages["bad"] = shippedMessage("bad", "9876543210123", date)
	stats, err = w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Skipped)
}

func TestSyncUserAuthExpiredAborts(t *testing.T) {
	mail := &fakeMail{
		order:    []string{"m1", "m2"},
		fetchErr: map[string]error{"m1": email.ErrAuthExpired},
	}
	w, _ := testWorker(t, mail, nil, SyncConfig{Lookback: 14 * 24 * time.Hour})

	_, err := w.SyncUser(context.Background(), "u1")
	assert.ErrorIs(t, err, email.ErrAuthExpired)
}

func TestSyncUserDryRunWritesNothing(t *testing.T) {
	date := time.Now().UTC().Add(-24 * time.Hour)
	mail := &fakeMail{
		order:    []string{"m1"},
		messages: map[string]*email.RawMessage{"m1": shippedMessage("m1", "1490312845126", date)},
	}
	w, db := testWorker(t, mail, nil, SyncConfig{Lookback: 14 * 24 * time.Hour, DryRun: true})

	_, err := w.SyncUser(context.Background(), "u1")
	require.NoError(t, err)

	shipments, err := db.Shipments.ListByUser(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.Empty(t, shipments)

	done, err := db.Processed.IsProcessed(context.Background(), "u1", "m1")
	require.NoError(t, err)
	assert.False(t, done)
}
