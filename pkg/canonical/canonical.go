// Package canonical produces the byte-stable projection of a verification
// record and its SHA-256 fingerprint. The serialization contract is JSON
// canonicalized per RFC 8785: sorted keys, no insignificant whitespace,
// UTF-8, fixed numeric representation. A downstream party holding the
// projection rules can reproduce the fingerprint byte for byte.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"

	"github.com/proptrust/engine/pkg/contracts"
)

// FingerprintSize is the digest length in bytes.
const FingerprintSize = sha256.Size

// loanProjection is the canonical loan shape. Context never enters the
// fingerprint; OCR noise around the amount must not move it.
type loanProjection struct {
	Amount int64  `json:"amount"`
	Bank   string `json:"bank"`
}

// projection is the exact canonical field set. Timestamps, UUIDs,
// confidences, OCR statistics and recommendation text are all excluded.
type projection struct {
	PropertyID          string           `json:"property_id"`
	Owner               string           `json:"owner"`
	SurveyNumber        string           `json:"survey_number"`
	HissaNumber         string           `json:"hissa_number"`
	Village             string           `json:"village"`
	Taluk               string           `json:"taluk"`
	District            string           `json:"district"`
	ExtentAcres         int              `json:"extent_acres"`
	ExtentGuntas        int              `json:"extent_guntas"`
	Loans               []loanProjection `json:"loans"`
	CaseNumbers         []string         `json:"case_numbers"`
	RiskScore           *int             `json:"risk_score,omitempty"`
	ClassificationLabel string           `json:"classification_label"`
}

// Input gathers everything the projection needs. ClassificationLabel must
// already be floor-filtered by the caller: pass the label only when its
// confidence met the floor, otherwise the empty string.
type Input struct {
	PropertyID          string
	Detail              contracts.VerificationDetail
	RiskScore           int
	ClassificationLabel string
}

// project builds the canonical projection. Strings are NFC-normalized,
// loans ordered by amount descending then bank, case numbers sorted.
func project(in Input, includeScore bool) projection {
	d := in.Detail

	loans := make([]loanProjection, len(d.Loans))
	for i, l := range d.Loans {
		loans[i] = loanProjection{Amount: l.Amount, Bank: nfc(l.Bank)}
	}
	sort.SliceStable(loans, func(i, j int) bool {
		if loans[i].Amount != loans[j].Amount {
			return loans[i].Amount > loans[j].Amount
		}
		return loans[i].Bank < loans[j].Bank
	})

	cases := make([]string, len(d.CaseNumbers))
	for i, c := range d.CaseNumbers {
		cases[i] = nfc(c)
	}
	sort.Strings(cases)

	p := projection{
		PropertyID:          nfc(in.PropertyID),
		Owner:               nfc(d.Owner),
		SurveyNumber:        nfc(d.SurveyNumber),
		HissaNumber:         nfc(d.HissaNumber),
		Village:             nfc(d.Village),
		Taluk:               nfc(d.Taluk),
		District:            nfc(d.District),
		ExtentAcres:         d.ExtentAcres,
		ExtentGuntas:        d.ExtentGuntas,
		Loans:               loans,
		CaseNumbers:         cases,
		ClassificationLabel: nfc(in.ClassificationLabel),
	}
	if includeScore {
		score := in.RiskScore
		p.RiskScore = &score
	}
	return p
}

func nfc(s string) string { return norm.NFC.String(s) }

// Bytes returns the canonical serialization of the full projection.
func Bytes(in Input) ([]byte, error) {
	return canonicalize(project(in, true))
}

// Fingerprint is the SHA-256 digest of the canonical bytes.
func Fingerprint(in Input) ([FingerprintSize]byte, error) {
	b, err := Bytes(in)
	if err != nil {
		return [FingerprintSize]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// ComparisonFingerprint digests the projection with risk_score excluded.
// It is used only to separate a re-scoring difference from an entity
// difference during tamper checks.
func ComparisonFingerprint(in Input) ([FingerprintSize]byte, error) {
	b, err := canonicalize(project(in, false))
	if err != nil {
		return [FingerprintSize]byte{}, err
	}
	return sha256.Sum256(b), nil
}

func canonicalize(p projection) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal projection: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize projection: %w", err)
	}
	return out, nil
}

// Hex renders a fingerprint for API responses and logs.
func Hex(fp [FingerprintSize]byte) string {
	return hex.EncodeToString(fp[:])
}

// ParseHex reads a fingerprint back from its hex form.
func ParseHex(s string) ([FingerprintSize]byte, error) {
	var fp [FingerprintSize]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("decode fingerprint: %w", err)
	}
	if len(b) != FingerprintSize {
		return fp, fmt.Errorf("fingerprint must be %d bytes, got %d", FingerprintSize, len(b))
	}
	copy(fp[:], b)
	return fp, nil
}
