// Package store is the relational persistence layer: properties,
// verification records and details, tamper checks, and the audit log.
// It works with both SQLite and Postgres via standard drivers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Stage name used in typed errors.
const Stage = "persistence"

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("store: not found")

// Store wraps an open database handle. The handle is owned by the caller.
type Store struct {
	db *sql.DB
}

// New migrates the schema and returns a ready store.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS properties (
		property_id TEXT PRIMARY KEY,
		document_type TEXT NOT NULL,
		last_owner TEXT NOT NULL DEFAULT '',
		last_survey TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS verification_records (
		verification_id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL REFERENCES properties(property_id),
		risk_score INTEGER NOT NULL,
		risk_level TEXT NOT NULL,
		classification_label TEXT NOT NULL,
		classification_confidence REAL NOT NULL,
		fingerprint BLOB NOT NULL,
		anchor_reference TEXT,
		anchor_block_height INTEGER,
		anchor_timestamp TIMESTAMP,
		document_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verification_records_property
		ON verification_records(property_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_verification_records_created_at
		ON verification_records(created_at);
	CREATE TABLE IF NOT EXISTS verification_details (
		verification_id TEXT PRIMARY KEY REFERENCES verification_records(verification_id),
		owner TEXT NOT NULL,
		survey_number TEXT NOT NULL,
		hissa_number TEXT NOT NULL,
		village TEXT NOT NULL,
		taluk TEXT NOT NULL,
		district TEXT NOT NULL,
		extent_acres INTEGER NOT NULL,
		extent_guntas INTEGER NOT NULL,
		valid_from TEXT NOT NULL DEFAULT '',
		valid_to TEXT NOT NULL DEFAULT '',
		digitally_signed_on TEXT NOT NULL DEFAULT '',
		loans JSON NOT NULL,
		mutations JSON NOT NULL,
		case_numbers JSON NOT NULL,
		dates JSON NOT NULL,
		text_preview TEXT NOT NULL DEFAULT '',
		pages_processed INTEGER NOT NULL DEFAULT 0,
		chars_original INTEGER NOT NULL DEFAULT 0,
		chars_cleaned INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS tamper_checks (
		tamper_check_id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		anchored_fingerprint BLOB NOT NULL,
		recomputed_fingerprint BLOB NOT NULL,
		hash_matched INTEGER NOT NULL,
		risk_score_delta INTEGER NOT NULL,
		status TEXT NOT NULL,
		warnings JSON NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tamper_checks_property
		ON tamper_checks(property_id, created_at);
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		property_id TEXT,
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at
		ON audit_logs(created_at);
	`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}
