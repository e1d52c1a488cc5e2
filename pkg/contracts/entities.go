// Package contracts defines the typed records that flow between pipeline
// stages and the entities persisted by the engine. Stage outputs are
// immutable value types; nothing in this package touches I/O.
package contracts

import "time"

// DocumentType identifies the declared kind of a property record.
type DocumentType string

const (
	DocTypeRTC      DocumentType = "RTC"
	DocTypeMR       DocumentType = "MR"
	DocTypeEC       DocumentType = "EC"
	DocTypeSaleDeed DocumentType = "SALE_DEED"
	DocTypeUnknown  DocumentType = "UNKNOWN"
)

// ParseDocumentType maps a caller-declared type string onto the fixed set.
// Unrecognized values collapse to DocTypeUnknown.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(s) {
	case DocTypeRTC, DocTypeMR, DocTypeEC, DocTypeSaleDeed:
		return DocumentType(s)
	default:
		return DocTypeUnknown
	}
}

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// LevelOf returns the risk level for a score. Boundaries resolve toward
// the higher level: LOW <= 30 < MEDIUM <= 60 < HIGH.
func LevelOf(score int) RiskLevel {
	switch {
	case score <= 30:
		return RiskLow
	case score <= 60:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// TamperStatus is the outcome of a tamper check.
type TamperStatus string

const (
	TamperVerified TamperStatus = "VERIFIED"
	TamperTampered TamperStatus = "TAMPERED"
	TamperNotFound TamperStatus = "NOT_FOUND"
	TamperError    TamperStatus = "ERROR"
)

// Property is the durable identity of a parcel as observed by this system.
// Created on first successful verification, never deleted by the engine.
type Property struct {
	PropertyID   string       `json:"property_id"`
	DocumentType DocumentType `json:"document_type"`
	// Denormalized last-seen fields for search.
	LastOwner  string    `json:"last_owner,omitempty"`
	LastSurvey string    `json:"last_survey,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LoanEntry is a single extracted loan or encumbrance.
// Amount is in paisa to avoid floating point drift.
type LoanEntry struct {
	Amount  int64  `json:"amount"`
	Bank    string `json:"bank"`
	Context string `json:"context,omitempty"`
}

// MutationEntry is a single mutation record reference.
type MutationEntry struct {
	RecordNumber string `json:"record_number"`
	Description  string `json:"description,omitempty"`
	Pending      bool   `json:"pending,omitempty"`
}

// VerificationRecord is the canonical output of one pipeline run.
// Immutable once written.
type VerificationRecord struct {
	VerificationID           string       `json:"verification_id"`
	PropertyID               string       `json:"property_id"`
	RiskScore                int          `json:"risk_score"`
	RiskLevel                RiskLevel    `json:"risk_level"`
	ClassificationLabel      string       `json:"classification_label"`
	ClassificationConfidence float64      `json:"classification_confidence"`
	Fingerprint              [32]byte     `json:"-"`
	AnchorReference          string       `json:"anchor_reference,omitempty"`
	AnchorBlockHeight        int64        `json:"anchor_block_height,omitempty"`
	AnchorTimestamp          time.Time    `json:"anchor_timestamp,omitzero"`
	CreatedAt                time.Time    `json:"created_at"`
	DocumentType             DocumentType `json:"document_type"`
}

// Anchored reports whether the record was successfully anchored to the ledger.
func (r VerificationRecord) Anchored() bool { return r.AnchorReference != "" }

// VerificationDetail holds the extracted entity set for one record,
// one-to-one with VerificationRecord.
type VerificationDetail struct {
	VerificationID    string          `json:"verification_id"`
	Owner             string          `json:"owner"`
	SurveyNumber      string          `json:"survey_number"`
	HissaNumber       string          `json:"hissa_number"`
	Village           string          `json:"village"`
	Taluk             string          `json:"taluk"`
	District          string          `json:"district"`
	ExtentAcres       int             `json:"extent_acres"`
	ExtentGuntas      int             `json:"extent_guntas"`
	ValidFrom         string          `json:"valid_from,omitempty"`
	ValidTo           string          `json:"valid_to,omitempty"`
	DigitallySignedOn string          `json:"digitally_signed_on,omitempty"`
	Loans             []LoanEntry     `json:"loans"`
	Mutations         []MutationEntry `json:"mutations"`
	CaseNumbers       []string        `json:"case_numbers"`
	Dates             []string        `json:"dates"`
	// TextPreview is a bounded prefix of the cleaned text.
	TextPreview string `json:"text_preview,omitempty"`
	// OCR statistics. Never part of the canonical projection.
	PagesProcessed int `json:"pages_processed"`
	CharsOriginal  int `json:"chars_original"`
	CharsCleaned   int `json:"chars_cleaned"`
}

// TamperCheck is the persisted result of one re-verification.
type TamperCheck struct {
	TamperCheckID         string       `json:"tamper_check_id"`
	PropertyID            string       `json:"property_id"`
	AnchoredFingerprint   [32]byte     `json:"-"`
	RecomputedFingerprint [32]byte     `json:"-"`
	HashMatched           bool         `json:"hash_matched"`
	RiskScoreDelta        int          `json:"risk_score_delta"`
	Status                TamperStatus `json:"status"`
	Warnings              []string     `json:"warnings"`
	CreatedAt             time.Time    `json:"created_at"`
}

// AuditOperation enumerates engine-level operations recorded in the audit log.
type AuditOperation string

const (
	OpVerify        AuditOperation = "VERIFY"
	OpTamperCheck   AuditOperation = "TAMPER_CHECK"
	OpCrossCheck    AuditOperation = "CROSS_CHECK"
	OpDelete        AuditOperation = "DELETE"
	OpLedgerAnchor  AuditOperation = "LEDGER_ANCHOR"
	OpLedgerFailure AuditOperation = "LEDGER_FAILURE"
)

// AuditStatus is the outcome recorded with an audit entry.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailure AuditStatus = "FAILURE"
)

// AuditEntry is one row of the append-only engine audit trail.
type AuditEntry struct {
	ID         string         `json:"id"`
	Operation  AuditOperation `json:"operation"`
	PropertyID string         `json:"property_id,omitempty"`
	Status     AuditStatus    `json:"status"`
	Message    string         `json:"message"`
	CreatedAt  time.Time      `json:"created_at"`
}
