package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Shipment is one tracked delivery for one user. IdentityKey is the
// stable deduplication key (tracking number, else order number, else the
// originating email ID) and is unique per user.
type Shipment struct {
	ID               int64      `json:"id"`
	UserID           string     `json:"user_id"`
	IdentityKey      string     `json:"-"`
	EmailID          string     `json:"email_id,omitempty"`
	ProductName      string     `json:"product_name"`
	Merchant         string     `json:"merchant"`
	Carrier          string     `json:"carrier"`
	TrackingNumber   string     `json:"tracking_number"`
	OrderNumber      string     `json:"order_number"`
	TrackingURL      string     `json:"tracking_url"`
	Status           string     `json:"status"`
	ExpectedDelivery string     `json:"expected_delivery"`
	Summary          string     `json:"summary"`
	ExtractionMethod string     `json:"extraction_method"`
	StatusOverride   bool       `json:"status_override"`
	Archived         bool       `json:"archived"`
	LastEmailDate    *time.Time `json:"last_email_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ShipmentStore provides shipment persistence. All lookups are scoped to
// a user; there is no cross-user read path except the sweep.
type ShipmentStore struct {
	db *sql.DB
}

const shipmentColumns = `id, user_id, identity_key, email_id, product_name, merchant,
	carrier, tracking_number, order_number, tracking_url, status, expected_delivery,
	summary, extraction_method, status_override, archived, last_email_date,
	created_at, updated_at`

func scanShipment(row interface{ Scan(...any) error }) (*Shipment, error) {
	var s Shipment
	err := row.Scan(&s.ID, &s.UserID, &s.IdentityKey, &s.EmailID, &s.ProductName,
		&s.Merchant, &s.Carrier, &s.TrackingNumber, &s.OrderNumber, &s.TrackingURL,
		&s.Status, &s.ExpectedDelivery, &s.Summary, &s.ExtractionMethod,
		&s.StatusOverride, &s.Archived, &s.LastEmailDate, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *ShipmentStore) getOne(ctx context.Context, where string, args ...any) (*Shipment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+shipmentColumns+" FROM shipments WHERE "+where, args...)
	sh, err := scanShipment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying shipment: %w", err)
	}
	return sh, nil
}

// GetByID returns the user's shipment with the given row ID, or nil.
func (s *ShipmentStore) GetByID(ctx context.Context, userID string, id int64) (*Shipment, error) {
	return s.getOne(ctx, "user_id = ? AND id = ?", userID, id)
}

// GetByIdentity returns the user's shipment with the given identity key,
// or nil when none exists.
func (s *ShipmentStore) GetByIdentity(ctx context.Context, userID, identityKey string) (*Shipment, error) {
	return s.getOne(ctx, "user_id = ? AND identity_key = ?", userID, identityKey)
}

// FindByTrackingNumber returns the user's shipment carrying the tracking
// number, or nil.
func (s *ShipmentStore) FindByTrackingNumber(ctx context.Context, userID, trackingNumber string) (*Shipment, error) {
	if trackingNumber == "" {
		return nil, nil
	}
	return s.getOne(ctx, "user_id = ? AND tracking_number = ?", userID, trackingNumber)
}

// FindByOrderNumber returns the user's shipment carrying the order
// number, or nil.
func (s *ShipmentStore) FindByOrderNumber(ctx context.Context, userID, orderNumber string) (*Shipment, error) {
	if orderNumber == "" {
		return nil, nil
	}
	return s.getOne(ctx, "user_id = ? AND order_number = ?", userID, orderNumber)
}

// ListByUser returns the user's shipments, most recently updated first.
// Archived shipments are included only when includeArchived is set.
func (s *ShipmentStore) ListByUser(ctx context.Context, userID string, includeArchived bool) ([]*Shipment, error) {
	query := "SELECT " + shipmentColumns + " FROM shipments WHERE user_id = ?"
	if !includeArchived {
		query += " AND archived = FALSE"
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing shipments: %w", err)
	}
	defer rows.Close()

	var out []*Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning shipment: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// ListSweepCandidates returns all shipments, across users, whose status
// could still be promoted by age inference: active, not user-overridden,
// and not already terminal.
func (s *ShipmentStore) ListSweepCandidates(ctx context.Context) ([]*Shipment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+shipmentColumns+` FROM shipments
		WHERE archived = FALSE AND status_override = FALSE
		  AND status IN ('SHIPPED', 'IN_TRANSIT', 'OUT_FOR_DELIVERY')
		  AND last_email_date IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing sweep candidates: %w", err)
	}
	defer rows.Close()

	var out []*Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning shipment: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// Insert stores a new shipment and fills its ID and timestamps.
func (s *ShipmentStore) Insert(ctx context.Context, sh *Shipment) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (user_id, identity_key, email_id, product_name,
			merchant, carrier, tracking_number, order_number, tracking_url,
			status, expected_delivery, summary, extraction_method,
			status_override, archived, last_email_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.UserID, sh.IdentityKey, sh.EmailID, sh.ProductName, sh.Merchant,
		sh.Carrier, sh.TrackingNumber, sh.OrderNumber, sh.TrackingURL, sh.Status,
		sh.ExpectedDelivery, sh.Summary, sh.ExtractionMethod, sh.StatusOverride,
		sh.Archived, sh.LastEmailDate, now, now)
	if err != nil {
		return fmt.Errorf("inserting shipment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	sh.ID = id
	sh.CreatedAt = now
	sh.UpdatedAt = now
	return nil
}

// Update persists all mutable fields of an existing shipment.
func (s *ShipmentStore) Update(ctx context.Context, sh *Shipment) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE shipments SET identity_key = ?, email_id = ?, product_name = ?,
			merchant = ?, carrier = ?, tracking_number = ?, order_number = ?,
			tracking_url = ?, status = ?, expected_delivery = ?, summary = ?,
			extraction_method = ?, status_override = ?, archived = ?,
			last_email_date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		sh.IdentityKey, sh.EmailID, sh.ProductName, sh.Merchant, sh.Carrier,
		sh.TrackingNumber, sh.OrderNumber, sh.TrackingURL, sh.Status,
		sh.ExpectedDelivery, sh.Summary, sh.ExtractionMethod, sh.StatusOverride,
		sh.Archived, sh.LastEmailDate, now, sh.ID, sh.UserID)
	if err != nil {
		return fmt.Errorf("updating shipment %d: %w", sh.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %d not found", sh.ID)
	}
	sh.UpdatedAt = now
	return nil
}

// SetStatus sets a shipment's status, optionally marking it as a user
// override which automated syncs will not overwrite.
func (s *ShipmentStore) SetStatus(ctx context.Context, userID string, id int64, status string, override bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE shipments SET status = ?, status_override = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		status, override, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("setting status on shipment %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %d not found", id)
	}
	return nil
}

// SetArchived archives or unarchives a shipment.
func (s *ShipmentStore) SetArchived(ctx context.Context, userID string, id int64, archived bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE shipments SET archived = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		archived, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("archiving shipment %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %d not found", id)
	}
	return nil
}

// Delete removes a shipment permanently.
func (s *ShipmentStore) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM shipments WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting shipment %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %d not found", id)
	}
	return nil
}
