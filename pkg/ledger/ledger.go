// Package ledger is the append-only anchoring abstraction. Entries are keyed
// by property id; overwriting a property pushes the prior fingerprint onto
// that property's history. Two backends satisfy identical semantics: a local
// deterministic SQL store and a remote chain client.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Stage name used in typed errors.
const Stage = "ledger_anchoring"

// Sentinel failures of the abstraction. Backends map their native errors
// onto these so callers never see backend-specific failure shapes.
var (
	ErrNotFound    = errors.New("ledger: property not found")
	ErrUnavailable = errors.New("ledger: backend unavailable")
	ErrRejected    = errors.New("ledger: entry rejected")
)

// Entry is the latest anchored state for one property.
type Entry struct {
	PropertyID      string    `json:"property_id"`
	Fingerprint     [32]byte  `json:"-"`
	RiskScore       int       `json:"risk_score"`
	VerifierID      string    `json:"verifier_id"`
	BlockHeight     int64     `json:"block_height"`
	LedgerTimestamp time.Time `json:"ledger_timestamp"`
}

// Receipt is returned by Put and identifies the new entry.
type Receipt struct {
	Handle          string    `json:"handle"`
	BlockHeight     int64     `json:"block_height"`
	LedgerTimestamp time.Time `json:"ledger_timestamp"`
}

// Status reports backend connectivity for the status endpoint.
type Status struct {
	Backend     string `json:"backend"`
	Available   bool   `json:"available"`
	BlockHeight int64  `json:"block_height"`
	Entries     int64  `json:"entries,omitempty"`
}

// Ledger is the backend contract. Put appends and never overwrites; Get
// returns the latest entry; History returns superseded fingerprints oldest
// first; Verify is an equality check against the latest fingerprint.
type Ledger interface {
	Put(ctx context.Context, propertyID string, fingerprint [32]byte, riskScore int) (Receipt, error)
	Get(ctx context.Context, propertyID string) (Entry, error)
	History(ctx context.Context, propertyID string) ([][32]byte, error)
	Verify(ctx context.Context, propertyID string, fingerprint [32]byte) (bool, error)
	Status(ctx context.Context) (Status, error)
	Close() error
}
