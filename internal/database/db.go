// Package database provides SQLite persistence for shipments and
// processed-email bookkeeping.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB handle with the typed stores.
type DB struct {
	*sql.DB
	Shipments *ShipmentStore
	Processed *ProcessedEmailStore
}

// Open opens (creating if needed) the SQLite database at path and runs
// migrations. Use ":memory:" in tests.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db := &DB{
		DB:        sqlDB,
		Shipments: &ShipmentStore{db: sqlDB},
		Processed: &ProcessedEmailStore{db: sqlDB},
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shipments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		identity_key TEXT NOT NULL,
		email_id TEXT NOT NULL DEFAULT '',
		product_name TEXT NOT NULL DEFAULT '',
		merchant TEXT NOT NULL DEFAULT '',
		carrier TEXT NOT NULL DEFAULT '',
		tracking_number TEXT NOT NULL DEFAULT '',
		order_number TEXT NOT NULL DEFAULT '',
		tracking_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		expected_delivery TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		extraction_method TEXT NOT NULL DEFAULT '',
		status_override BOOLEAN NOT NULL DEFAULT FALSE,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		last_email_date DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, identity_key)
	);

	CREATE INDEX IF NOT EXISTS idx_shipments_user ON shipments(user_id);
	CREATE INDEX IF NOT EXISTS idx_shipments_tracking ON shipments(user_id, tracking_number);
	CREATE INDEX IF NOT EXISTS idx_shipments_order ON shipments(user_id, order_number);
	CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status);

	CREATE TABLE IF NOT EXISTS processed_emails (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		email_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		shipment_id INTEGER,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, email_id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}
