package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// RemoteLedger anchors against a chain gateway over JSON-RPC. The gateway
// exposes the anchor_* namespace and maps each call onto its chain; this
// client only translates between the unified contract and the wire shapes.
type RemoteLedger struct {
	client   *rpc.Client
	endpoint string
	verifier string
}

// DialRemote connects to the gateway endpoint.
func DialRemote(ctx context.Context, endpoint, verifier string) (*RemoteLedger, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, endpoint, err)
	}
	return &RemoteLedger{client: client, endpoint: endpoint, verifier: verifier}, nil
}

// wireEntry is the gateway's entry shape. Fingerprints travel as hex.
type wireEntry struct {
	PropertyID     string `json:"propertyId"`
	FingerprintHex string `json:"fingerprint"`
	RiskScore      int    `json:"riskScore"`
	VerifierID     string `json:"verifierId"`
	BlockHeight    int64  `json:"blockHeight"`
	TimestampUnix  int64  `json:"timestamp"`
}

type wireReceipt struct {
	Handle        string `json:"handle"`
	BlockHeight   int64  `json:"blockHeight"`
	TimestampUnix int64  `json:"timestamp"`
}

func (l *RemoteLedger) Put(ctx context.Context, propertyID string, fingerprint [32]byte, riskScore int) (Receipt, error) {
	var out wireReceipt
	err := l.client.CallContext(ctx, &out, "anchor_put", propertyID, hex.EncodeToString(fingerprint[:]), riskScore, l.verifier)
	if err != nil {
		return Receipt{}, mapRemoteError(err)
	}
	return Receipt{
		Handle:          out.Handle,
		BlockHeight:     out.BlockHeight,
		LedgerTimestamp: time.Unix(out.TimestampUnix, 0).UTC(),
	}, nil
}

func (l *RemoteLedger) Get(ctx context.Context, propertyID string) (Entry, error) {
	var out *wireEntry
	err := l.client.CallContext(ctx, &out, "anchor_get", propertyID)
	if err != nil {
		return Entry{}, mapRemoteError(err)
	}
	if out == nil {
		return Entry{}, ErrNotFound
	}
	fp, err := hex.DecodeString(out.FingerprintHex)
	if err != nil || len(fp) != 32 {
		return Entry{}, fmt.Errorf("%w: malformed fingerprint %q", ErrUnavailable, out.FingerprintHex)
	}
	e := Entry{
		PropertyID:      out.PropertyID,
		RiskScore:       out.RiskScore,
		VerifierID:      out.VerifierID,
		BlockHeight:     out.BlockHeight,
		LedgerTimestamp: time.Unix(out.TimestampUnix, 0).UTC(),
	}
	copy(e.Fingerprint[:], fp)
	return e, nil
}

func (l *RemoteLedger) History(ctx context.Context, propertyID string) ([][32]byte, error) {
	var hexes []string
	err := l.client.CallContext(ctx, &hexes, "anchor_history", propertyID)
	if err != nil {
		return nil, mapRemoteError(err)
	}
	if hexes == nil {
		return nil, ErrNotFound
	}
	out := make([][32]byte, 0, len(hexes))
	for _, h := range hexes {
		raw, err := hex.DecodeString(h)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("%w: malformed fingerprint %q", ErrUnavailable, h)
		}
		var fp [32]byte
		copy(fp[:], raw)
		out = append(out, fp)
	}
	return out, nil
}

func (l *RemoteLedger) Verify(ctx context.Context, propertyID string, fingerprint [32]byte) (bool, error) {
	e, err := l.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return e.Fingerprint == fingerprint, nil
}

func (l *RemoteLedger) Status(ctx context.Context) (Status, error) {
	var height int64
	if err := l.client.CallContext(ctx, &height, "anchor_blockHeight"); err != nil {
		return Status{Backend: "remote"}, mapRemoteError(err)
	}
	return Status{Backend: "remote", Available: true, BlockHeight: height}, nil
}

func (l *RemoteLedger) Close() error {
	l.client.Close()
	return nil
}

// Gateway application error codes.
const (
	codeRejected = -32003
	codeNotFound = -32004
)

// mapRemoteError folds gateway errors onto the sentinel set. JSON-RPC
// application errors carry a code; transport failures do not.
func mapRemoteError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeNotFound:
			return ErrNotFound
		case codeRejected:
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
