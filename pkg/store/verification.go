package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/proptrust/engine/pkg/contracts"
)

// InsertVerification writes the property (upsert), the record, and the
// detail in one transaction. A partially persisted verification never
// becomes visible.
func (s *Store) InsertVerification(ctx context.Context, p contracts.Property, r contracts.VerificationRecord, d contracts.VerificationDetail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO properties (property_id, document_type, last_owner, last_survey, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (property_id) DO UPDATE SET
			last_owner = excluded.last_owner,
			last_survey = excluded.last_survey`,
		p.PropertyID, string(p.DocumentType), p.LastOwner, p.LastSurvey, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert property: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verification_records (
			verification_id, property_id, risk_score, risk_level,
			classification_label, classification_confidence, fingerprint,
			anchor_reference, anchor_block_height, anchor_timestamp,
			document_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.VerificationID, r.PropertyID, r.RiskScore, string(r.RiskLevel),
		r.ClassificationLabel, r.ClassificationConfidence, r.Fingerprint[:],
		nullString(r.AnchorReference), nullInt64(r.AnchorBlockHeight), nullTime(r.AnchorTimestamp),
		string(r.DocumentType), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	loans := marshalJSON(d.Loans)
	mutations := marshalJSON(d.Mutations)
	cases := marshalJSON(d.CaseNumbers)
	dates := marshalJSON(d.Dates)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verification_details (
			verification_id, owner, survey_number, hissa_number, village, taluk,
			district, extent_acres, extent_guntas, valid_from, valid_to,
			digitally_signed_on, loans, mutations, case_numbers, dates,
			text_preview, pages_processed, chars_original, chars_cleaned
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		r.VerificationID, d.Owner, d.SurveyNumber, d.HissaNumber, d.Village, d.Taluk,
		d.District, d.ExtentAcres, d.ExtentGuntas, d.ValidFrom, d.ValidTo,
		d.DigitallySignedOn, loans, mutations, cases, dates,
		d.TextPreview, d.PagesProcessed, d.CharsOriginal, d.CharsCleaned,
	)
	if err != nil {
		return fmt.Errorf("insert detail: %w", err)
	}

	return tx.Commit()
}

// UpdateAnchor records a successful ledger anchoring after the fact.
func (s *Store) UpdateAnchor(ctx context.Context, verificationID, reference string, blockHeight int64, ts time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verification_records
		SET anchor_reference = $1, anchor_block_height = $2, anchor_timestamp = $3
		WHERE verification_id = $4`,
		reference, blockHeight, ts.UTC(), verificationID,
	)
	if err != nil {
		return fmt.Errorf("update anchor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update anchor: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestVerification returns the most recent record and detail for a
// property.
func (s *Store) LatestVerification(ctx context.Context, propertyID string) (contracts.VerificationRecord, contracts.VerificationDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT verification_id, property_id, risk_score, risk_level,
		       classification_label, classification_confidence, fingerprint,
		       anchor_reference, anchor_block_height, anchor_timestamp,
		       document_type, created_at
		FROM verification_records
		WHERE property_id = $1
		ORDER BY created_at DESC, verification_id DESC
		LIMIT 1`,
		propertyID,
	)

	r, err := scanRecord(row)
	if err != nil {
		return contracts.VerificationRecord{}, contracts.VerificationDetail{}, err
	}

	d, err := s.detail(ctx, r.VerificationID)
	if err != nil {
		return contracts.VerificationRecord{}, contracts.VerificationDetail{}, err
	}
	return r, d, nil
}

// VerificationByFingerprint returns the newest record carrying the given
// fingerprint for a property, with its detail. Later verifications of the
// same property do not shadow it.
func (s *Store) VerificationByFingerprint(ctx context.Context, propertyID string, fp [32]byte) (contracts.VerificationRecord, contracts.VerificationDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT verification_id, property_id, risk_score, risk_level,
		       classification_label, classification_confidence, fingerprint,
		       anchor_reference, anchor_block_height, anchor_timestamp,
		       document_type, created_at
		FROM verification_records
		WHERE property_id = $1 AND fingerprint = $2
		ORDER BY created_at DESC, verification_id DESC
		LIMIT 1`,
		propertyID, fp[:],
	)

	r, err := scanRecord(row)
	if err != nil {
		return contracts.VerificationRecord{}, contracts.VerificationDetail{}, err
	}

	d, err := s.detail(ctx, r.VerificationID)
	if err != nil {
		return contracts.VerificationRecord{}, contracts.VerificationDetail{}, err
	}
	return r, d, nil
}

// GetProperty returns one property row.
func (s *Store) GetProperty(ctx context.Context, propertyID string) (contracts.Property, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT property_id, document_type, last_owner, last_survey, created_at
		FROM properties WHERE property_id = $1`,
		propertyID,
	)
	var p contracts.Property
	var docType string
	err := row.Scan(&p.PropertyID, &docType, &p.LastOwner, &p.LastSurvey, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.Property{}, ErrNotFound
	}
	if err != nil {
		return contracts.Property{}, err
	}
	p.DocumentType = contracts.DocumentType(docType)
	return p, nil
}

// DeleteProperty removes the property and every dependent row. Audit
// entries are append-only and survive; the ledger is never touched.
func (s *Store) DeleteProperty(ctx context.Context, propertyID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE property_id = $1`, propertyID)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM verification_details WHERE verification_id IN (
			SELECT verification_id FROM verification_records WHERE property_id = $1
		)`, propertyID)
	if err != nil {
		return fmt.Errorf("delete details: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM verification_records WHERE property_id = $1`, propertyID); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tamper_checks WHERE property_id = $1`, propertyID); err != nil {
		return fmt.Errorf("delete tamper checks: %w", err)
	}

	return tx.Commit()
}

func (s *Store) detail(ctx context.Context, verificationID string) (contracts.VerificationDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT verification_id, owner, survey_number, hissa_number, village, taluk,
		       district, extent_acres, extent_guntas, valid_from, valid_to,
		       digitally_signed_on, loans, mutations, case_numbers, dates,
		       text_preview, pages_processed, chars_original, chars_cleaned
		FROM verification_details WHERE verification_id = $1`,
		verificationID,
	)

	var d contracts.VerificationDetail
	var loans, mutations, cases, dates string
	err := row.Scan(
		&d.VerificationID, &d.Owner, &d.SurveyNumber, &d.HissaNumber, &d.Village, &d.Taluk,
		&d.District, &d.ExtentAcres, &d.ExtentGuntas, &d.ValidFrom, &d.ValidTo,
		&d.DigitallySignedOn, &loans, &mutations, &cases, &dates,
		&d.TextPreview, &d.PagesProcessed, &d.CharsOriginal, &d.CharsCleaned,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.VerificationDetail{}, ErrNotFound
	}
	if err != nil {
		return contracts.VerificationDetail{}, err
	}

	unmarshalJSON(loans, &d.Loans)
	unmarshalJSON(mutations, &d.Mutations)
	unmarshalJSON(cases, &d.CaseNumbers)
	unmarshalJSON(dates, &d.Dates)
	return d, nil
}

func scanRecord(row *sql.Row) (contracts.VerificationRecord, error) {
	var r contracts.VerificationRecord
	var riskLevel, docType string
	var fp []byte
	var anchorRef sql.NullString
	var anchorHeight sql.NullInt64
	var anchorTS sql.NullTime

	err := row.Scan(
		&r.VerificationID, &r.PropertyID, &r.RiskScore, &riskLevel,
		&r.ClassificationLabel, &r.ClassificationConfidence, &fp,
		&anchorRef, &anchorHeight, &anchorTS,
		&docType, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.VerificationRecord{}, ErrNotFound
	}
	if err != nil {
		return contracts.VerificationRecord{}, err
	}

	r.RiskLevel = contracts.RiskLevel(riskLevel)
	r.DocumentType = contracts.DocumentType(docType)
	copy(r.Fingerprint[:], fp)
	r.AnchorReference = anchorRef.String
	r.AnchorBlockHeight = anchorHeight.Int64
	if anchorTS.Valid {
		r.AnchorTimestamp = anchorTS.Time
	}
	return r, nil
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON[T any](raw string, out *T) {
	if raw == "" || raw == "null" {
		return
	}
	_ = json.Unmarshal([]byte(raw), out)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
