package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/proptrust/engine/pkg/canonical"
	"github.com/proptrust/engine/pkg/contracts"
	"github.com/proptrust/engine/pkg/crossdoc"
	"github.com/proptrust/engine/pkg/engine"
	"github.com/proptrust/engine/pkg/ledger"
	"github.com/proptrust/engine/pkg/risk"
	"github.com/proptrust/engine/pkg/store"
)

// VerificationEngine is the engine surface the HTTP edge consumes.
type VerificationEngine interface {
	Verify(ctx context.Context, req engine.VerifyRequest) (engine.VerifyResult, error)
	CheckTamper(ctx context.Context, propertyID string, doc []byte, format contracts.FormatHint) (contracts.TamperCheck, error)
	Latest(ctx context.Context, propertyID string) (contracts.VerificationRecord, contracts.VerificationDetail, error)
	CrossCheck(ctx context.Context, rtcPropertyID, mrPropertyID string) (crossdoc.Report, error)
	Delete(ctx context.Context, propertyID string) error
	LedgerStatus(ctx context.Context) (ledger.Status, error)
	Statistics(ctx context.Context) (store.Statistics, error)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifyResponse is the upload endpoint's answer.
type verifyResponse struct {
	PropertyID      string                       `json:"property_id"`
	VerificationID  string                       `json:"verification_id"`
	RiskScore       int                          `json:"risk_score"`
	RiskLevel       contracts.RiskLevel          `json:"risk_level"`
	Classification  contracts.Classification     `json:"classification"`
	Entities        contracts.VerificationDetail `json:"entities"`
	Factors         []risk.Factor                `json:"factors"`
	Recommendations []string                     `json:"recommendations"`
	Ledger          ledgerResponse               `json:"ledger"`
	Warnings        []string                     `json:"warnings"`
}

type ledgerResponse struct {
	Stored         bool   `json:"stored"`
	FingerprintHex string `json:"fingerprint_hex"`
	Reference      string `json:"reference,omitempty"`
	BlockHeight    int64  `json:"block_height,omitempty"`
}

func (s *Server) handleVerifyUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	doc, filename, ok := readUpload(w, r)
	if !ok {
		return
	}

	anchor := parseBool(r.FormValue("store_on_ledger"))
	res, err := s.engine.Verify(r.Context(), engine.VerifyRequest{
		Document:     doc,
		Format:       formatFromFilename(filename),
		DeclaredType: contracts.ParseDocumentType(r.FormValue("document_type")),
		PropertyID:   r.FormValue("property_id"),
		Anchor:       anchor,
	})
	if err != nil {
		WriteEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		PropertyID:      res.Record.PropertyID,
		VerificationID:  res.Record.VerificationID,
		RiskScore:       res.Record.RiskScore,
		RiskLevel:       res.Record.RiskLevel,
		Classification:  contracts.Classification{Label: res.Record.ClassificationLabel, Confidence: res.Record.ClassificationConfidence},
		Entities:        res.Detail,
		Factors:         res.Assessment.Factors,
		Recommendations: res.Assessment.Recommendations,
		Ledger: ledgerResponse{
			Stored:         res.Record.Anchored(),
			FingerprintHex: canonical.Hex(res.Record.Fingerprint),
			Reference:      res.Record.AnchorReference,
			BlockHeight:    res.Record.AnchorBlockHeight,
		},
		Warnings: res.Warnings,
	})
}

// tamperResponse is the tamper endpoint's answer.
type tamperResponse struct {
	TamperCheckID            string                 `json:"tamper_check_id"`
	PropertyID               string                 `json:"property_id"`
	Status                   contracts.TamperStatus `json:"status"`
	HashMatched              bool                   `json:"hash_matched"`
	AnchoredFingerprintHex   string                 `json:"anchored_fingerprint_hex"`
	RecomputedFingerprintHex string                 `json:"recomputed_fingerprint_hex"`
	RiskScoreDelta           int                    `json:"risk_score_delta"`
	Warnings                 []string               `json:"warnings"`
}

func (s *Server) handleTamperCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	propertyID := r.URL.Query().Get("property_id")
	if propertyID == "" {
		WriteBadRequest(w, "Missing required query parameter: property_id")
		return
	}

	doc, filename, ok := readUpload(w, r)
	if !ok {
		return
	}

	tc, err := s.engine.CheckTamper(r.Context(), propertyID, doc, formatFromFilename(filename))
	if err != nil {
		WriteEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tamperResponse{
		TamperCheckID:            tc.TamperCheckID,
		PropertyID:               tc.PropertyID,
		Status:                   tc.Status,
		HashMatched:              tc.HashMatched,
		AnchoredFingerprintHex:   canonical.Hex(tc.AnchoredFingerprint),
		RecomputedFingerprintHex: canonical.Hex(tc.RecomputedFingerprint),
		RiskScoreDelta:           tc.RiskScoreDelta,
		Warnings:                 tc.Warnings,
	})
}

// verificationResponse pairs the latest record with its detail.
type verificationResponse struct {
	Record contracts.VerificationRecord `json:"record"`
	Detail contracts.VerificationDetail `json:"detail"`
	// FingerprintHex exposes the digest the record carries.
	FingerprintHex string `json:"fingerprint_hex"`
}

func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	propertyID := propertyIDFromPath(r.URL.Path)
	if propertyID == "" {
		WriteNotFound(w, "Unknown resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, detail, err := s.engine.Latest(r.Context(), propertyID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteNotFound(w, "Unknown property")
				return
			}
			WriteEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verificationResponse{
			Record:         record,
			Detail:         detail,
			FingerprintHex: canonical.Hex(record.Fingerprint),
		})

	case http.MethodDelete:
		if err := s.engine.Delete(r.Context(), propertyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				WriteNotFound(w, "Unknown property")
				return
			}
			WriteEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": propertyID})

	default:
		WriteMethodNotAllowed(w)
	}
}

func (s *Server) handleCrossCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	rtcID := r.URL.Query().Get("rtc")
	mrID := r.URL.Query().Get("mr")
	if rtcID == "" || mrID == "" {
		WriteBadRequest(w, "Missing required query parameters: rtc, mr")
		return
	}

	rep, err := s.engine.CrossCheck(r.Context(), rtcID, mrID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Unknown property")
			return
		}
		WriteEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleLedgerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	status, err := s.engine.LedgerStatus(r.Context())
	if err != nil {
		// Connectivity failure is the answer, not an error page.
		status.Available = false
		writeJSON(w, http.StatusOK, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	stats, err := s.engine.Statistics(r.Context())
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// readUpload extracts the multipart file field. On failure it writes the
// error response and returns ok=false.
func readUpload(w http.ResponseWriter, r *http.Request) (doc []byte, filename string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		WriteBadRequest(w, "Expected multipart form with a file field")
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteBadRequest(w, "Missing required field: file")
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	doc, err = io.ReadAll(file)
	if err != nil {
		WriteBadRequest(w, "Unreadable upload")
		return nil, "", false
	}
	return doc, header.Filename, true
}

func formatFromFilename(name string) contracts.FormatHint {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return contracts.FormatPDF
	}
	return contracts.FormatImage
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
