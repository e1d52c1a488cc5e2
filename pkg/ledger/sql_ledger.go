package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// genesisHeight is the block height of the first entry ever written.
const genesisHeight = 1_000_000

// SQLLedger is the local deterministic backend. It works with both SQLite
// and Postgres via standard drivers; every append gets the next monotonic
// block height.
type SQLLedger struct {
	db       *sql.DB
	verifier string
	now      func() time.Time
	newID    func() string
}

// SQLOption configures a SQLLedger.
type SQLOption func(*SQLLedger)

// WithVerifier sets the verifier identity recorded on each entry.
func WithVerifier(id string) SQLOption {
	return func(l *SQLLedger) { l.verifier = id }
}

// WithClock fixes the ledger clock. Tests pin it.
func WithClock(now func() time.Time) SQLOption {
	return func(l *SQLLedger) { l.now = now }
}

// WithHandleGenerator overrides handle allocation. Tests pin it.
func WithHandleGenerator(newID func() string) SQLOption {
	return func(l *SQLLedger) { l.newID = newID }
}

// NewSQLLedger wraps an open database handle. Call Init before use.
func NewSQLLedger(db *sql.DB, opts ...SQLOption) *SQLLedger {
	l := &SQLLedger{
		db:       db,
		verifier: "local-engine",
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	block_height INTEGER PRIMARY KEY,
	handle TEXT NOT NULL UNIQUE,
	property_id TEXT NOT NULL,
	fingerprint BLOB NOT NULL,
	risk_score INTEGER NOT NULL,
	verifier_id TEXT NOT NULL,
	ledger_timestamp TIMESTAMP NOT NULL,
	prev_block_height INTEGER
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_property ON ledger_entries(property_id, block_height);
`

// Init creates the schema.
func (l *SQLLedger) Init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, ledgerSchema)
	return err
}

// Put appends a new entry inside one transaction so the height sequence has
// no gaps or duplicates under concurrent writers.
func (l *SQLLedger) Put(ctx context.Context, propertyID string, fingerprint [32]byte, riskScore int) (Receipt, error) {
	if propertyID == "" {
		return Receipt{}, fmt.Errorf("%w: empty property id", ErrRejected)
	}
	if riskScore < 0 || riskScore > 100 {
		return Receipt{}, fmt.Errorf("%w: risk score %d out of range", ErrRejected, riskScore)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64 = genesisHeight
	var top sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(block_height) FROM ledger_entries`).Scan(&top); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if top.Valid {
		next = top.Int64 + 1
	}

	var prev sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT block_height FROM ledger_entries WHERE property_id = $1 ORDER BY block_height DESC LIMIT 1`,
		propertyID,
	).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	handle := l.newID()
	ts := l.now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (block_height, handle, property_id, fingerprint, risk_score, verifier_id, ledger_timestamp, prev_block_height)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		next, handle, propertyID, fingerprint[:], riskScore, l.verifier, ts, prev,
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Receipt{Handle: handle, BlockHeight: next, LedgerTimestamp: ts}, nil
}

// Get returns the latest entry for a property.
func (l *SQLLedger) Get(ctx context.Context, propertyID string) (Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT property_id, fingerprint, risk_score, verifier_id, block_height, ledger_timestamp
		 FROM ledger_entries WHERE property_id = $1 ORDER BY block_height DESC LIMIT 1`,
		propertyID,
	)

	var e Entry
	var fp []byte
	err := row.Scan(&e.PropertyID, &fp, &e.RiskScore, &e.VerifierID, &e.BlockHeight, &e.LedgerTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fp) != len(e.Fingerprint) {
		return Entry{}, fmt.Errorf("%w: corrupt fingerprint length %d", ErrUnavailable, len(fp))
	}
	copy(e.Fingerprint[:], fp)
	return e, nil
}

// History returns superseded fingerprints, oldest first. The latest entry is
// not part of the history. An unknown property yields ErrNotFound.
func (l *SQLLedger) History(ctx context.Context, propertyID string) ([][32]byte, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT fingerprint FROM ledger_entries WHERE property_id = $1 ORDER BY block_height ASC`,
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	all := make([][32]byte, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		var fp [32]byte
		copy(fp[:], raw)
		all = append(all, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[:len(all)-1], nil
}

// Verify checks the given fingerprint against the latest entry.
func (l *SQLLedger) Verify(ctx context.Context, propertyID string, fingerprint [32]byte) (bool, error) {
	e, err := l.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return e.Fingerprint == fingerprint, nil
}

// Status reports entry count and the current top height.
func (l *SQLLedger) Status(ctx context.Context) (Status, error) {
	var entries int64
	var top sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(block_height) FROM ledger_entries`).Scan(&entries, &top)
	if err != nil {
		return Status{Backend: "local"}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s := Status{Backend: "local", Available: true, Entries: entries}
	if top.Valid {
		s.BlockHeight = top.Int64
	}
	return s, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (l *SQLLedger) Close() error { return nil }
