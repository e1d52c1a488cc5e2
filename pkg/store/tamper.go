package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proptrust/engine/pkg/contracts"
)

// InsertTamperCheck persists one re-verification result.
func (s *Store) InsertTamperCheck(ctx context.Context, tc contracts.TamperCheck) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tamper_checks (
			tamper_check_id, property_id, anchored_fingerprint,
			recomputed_fingerprint, hash_matched, risk_score_delta,
			status, warnings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tc.TamperCheckID, tc.PropertyID, tc.AnchoredFingerprint[:],
		tc.RecomputedFingerprint[:], tc.HashMatched, tc.RiskScoreDelta,
		string(tc.Status), marshalJSON(tc.Warnings), tc.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert tamper check: %w", err)
	}
	return nil
}

// TamperChecks returns a property's checks, newest first.
func (s *Store) TamperChecks(ctx context.Context, propertyID string, limit int) ([]contracts.TamperCheck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tamper_check_id, property_id, anchored_fingerprint,
		       recomputed_fingerprint, hash_matched, risk_score_delta,
		       status, warnings, created_at
		FROM tamper_checks
		WHERE property_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		propertyID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.TamperCheck, 0)
	for rows.Next() {
		var tc contracts.TamperCheck
		var anchored, recomputed []byte
		var status, warnings string
		err := rows.Scan(
			&tc.TamperCheckID, &tc.PropertyID, &anchored,
			&recomputed, &tc.HashMatched, &tc.RiskScoreDelta,
			&status, &warnings, &tc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		copy(tc.AnchoredFingerprint[:], anchored)
		copy(tc.RecomputedFingerprint[:], recomputed)
		tc.Status = contracts.TamperStatus(status)
		unmarshalJSON(warnings, &tc.Warnings)
		out = append(out, tc)
	}
	return out, rows.Err()
}

// AppendAudit writes one audit entry. The table is append-only; nothing in
// the store ever updates or deletes from it.
func (s *Store) AppendAudit(ctx context.Context, e contracts.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, operation, property_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, string(e.Operation), nullString(e.PropertyID), string(e.Status), e.Message, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// RecentAudit returns the newest audit entries, most recent first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]contracts.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, property_id, status, message, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.AuditEntry, 0)
	for rows.Next() {
		var e contracts.AuditEntry
		var op, status string
		var propertyID sql.NullString
		if err := rows.Scan(&e.ID, &op, &propertyID, &status, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Operation = contracts.AuditOperation(op)
		e.Status = contracts.AuditStatus(status)
		e.PropertyID = propertyID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Statistics aggregates engine-wide counts and the risk histogram.
type Statistics struct {
	Properties    int64            `json:"properties"`
	Verifications int64            `json:"verifications"`
	Anchored      int64            `json:"anchored"`
	TamperChecks  int64            `json:"tamper_checks"`
	RiskBuckets   map[string]int64 `json:"risk_buckets"`
}

// Statistics computes the aggregate view served by the statistics endpoint.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{RiskBuckets: map[string]int64{
		string(contracts.RiskLow):    0,
		string(contracts.RiskMedium): 0,
		string(contracts.RiskHigh):   0,
	}}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM properties`, &stats.Properties},
		{`SELECT COUNT(*) FROM verification_records`, &stats.Verifications},
		{`SELECT COUNT(*) FROM verification_records WHERE anchor_reference IS NOT NULL`, &stats.Anchored},
		{`SELECT COUNT(*) FROM tamper_checks`, &stats.TamperChecks},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Statistics{}, err
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT risk_level, COUNT(*) FROM verification_records GROUP BY risk_level`)
	if err != nil {
		return Statistics{}, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return Statistics{}, err
		}
		stats.RiskBuckets[level] = n
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}
	return stats, nil
}
