// Package engine drives the verification pipeline: extraction, cleaning,
// translation, entity extraction and classification in parallel, scoring,
// fingerprinting, ledger anchoring, and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/proptrust/engine/pkg/audit"
	"github.com/proptrust/engine/pkg/canonical"
	"github.com/proptrust/engine/pkg/classify"
	"github.com/proptrust/engine/pkg/contracts"
	"github.com/proptrust/engine/pkg/extract"
	"github.com/proptrust/engine/pkg/ledger"
	"github.com/proptrust/engine/pkg/normalize"
	"github.com/proptrust/engine/pkg/observability"
	"github.com/proptrust/engine/pkg/ocr"
	"github.com/proptrust/engine/pkg/risk"
	"github.com/proptrust/engine/pkg/store"
	"github.com/proptrust/engine/pkg/translate"
)

// TextPreviewBound caps the cleaned-text prefix stored with each detail.
const TextPreviewBound = 500

// Timeouts are the per-stage deadlines.
type Timeouts struct {
	Extraction     time.Duration
	Translation    time.Duration
	Classification time.Duration
	Ledger         time.Duration
}

// DefaultTimeouts matches the shipped configuration defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Extraction:     60 * time.Second,
		Translation:    30 * time.Second,
		Classification: 20 * time.Second,
		Ledger:         30 * time.Second,
	}
}

// Engine owns the pipeline stages and the stores they feed.
type Engine struct {
	extractor  ocr.Extractor
	translator *translate.Service
	entities   *extract.Extractor
	classifier classify.Classifier
	scorer     *risk.Scorer
	ledger     ledger.Ledger
	store      *store.Store
	audit      audit.Logger
	log        *slog.Logger
	telemetry  *observability.Provider

	timeouts        Timeouts
	confidenceFloor float64

	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeouts overrides the per-stage deadlines.
func WithTimeouts(t Timeouts) Option {
	return func(e *Engine) { e.timeouts = t }
}

// WithConfidenceFloor overrides the classifier confidence floor.
func WithConfidenceFloor(floor float64) Option {
	return func(e *Engine) { e.confidenceFloor = floor }
}

// WithTelemetry attaches the tracing and metrics provider. Verify and
// CheckTamper are tracked as operations; nil disables tracking.
func WithTelemetry(p *observability.Provider) Option {
	return func(e *Engine) { e.telemetry = p }
}

// WithClock fixes the engine clock. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides id allocation. Tests pin it.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New wires the pipeline. All collaborators are required except the
// translator service, which may wrap a nil provider.
func New(
	extractor ocr.Extractor,
	translator *translate.Service,
	entities *extract.Extractor,
	classifier classify.Classifier,
	scorer *risk.Scorer,
	ldg ledger.Ledger,
	st *store.Store,
	auditLog audit.Logger,
	log *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		extractor:       extractor,
		translator:      translator,
		entities:        entities,
		classifier:      classifier,
		scorer:          scorer,
		ledger:          ldg,
		store:           st,
		audit:           auditLog,
		log:             log,
		timeouts:        DefaultTimeouts(),
		confidenceFloor: classify.DefaultConfidenceFloor,
		now:             time.Now,
		newID:           func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VerifyRequest is one verification run.
type VerifyRequest struct {
	Document     []byte
	Format       contracts.FormatHint
	DeclaredType contracts.DocumentType
	// PropertyID is allocated when empty.
	PropertyID string
	Anchor     bool
}

// VerifyResult is the engine's answer: the persisted record and detail plus
// the non-persisted scoring breakdown and any soft warnings.
type VerifyResult struct {
	Record     contracts.VerificationRecord
	Detail     contracts.VerificationDetail
	Assessment risk.Assessment
	Warnings   []string
}

// Verify runs the full pipeline and persists the outcome. The record is
// anchored to the ledger when requested; anchoring failure is non-fatal and
// leaves the anchor fields empty with a LEDGER_FAILURE audit entry.
func (e *Engine) Verify(ctx context.Context, req VerifyRequest) (res VerifyResult, err error) {
	if e.telemetry != nil {
		var done func(error)
		ctx, done = e.telemetry.TrackOperation(ctx, "verify",
			attribute.String("document_type", string(req.DeclaredType)))
		defer func() { done(err) }()
	}

	if len(req.Document) == 0 {
		return VerifyResult{}, contracts.NewError(contracts.KindBadInput, ocr.Stage, "empty document", nil)
	}

	propertyID := req.PropertyID
	if propertyID == "" {
		propertyID = e.newID()
	}
	verificationID := e.newID()

	run, err := e.runPipeline(ctx, req.Document, req.Format)
	if err != nil {
		e.recordAudit(ctx, contracts.OpVerify, propertyID, contracts.AuditFailure, err.Error())
		return VerifyResult{}, err
	}

	detail := run.detail
	detail.VerificationID = verificationID

	fingerprint, err := canonical.Fingerprint(canonical.Input{
		PropertyID:          propertyID,
		Detail:              detail,
		RiskScore:           run.assessment.Score,
		ClassificationLabel: run.canonicalLabel,
	})
	if err != nil {
		wrapped := contracts.NewError(contracts.KindInternal, "fingerprinting", "canonicalization failed", err)
		e.recordAudit(ctx, contracts.OpVerify, propertyID, contracts.AuditFailure, wrapped.Error())
		return VerifyResult{}, wrapped
	}

	now := e.now().UTC()
	record := contracts.VerificationRecord{
		VerificationID:           verificationID,
		PropertyID:               propertyID,
		RiskScore:                run.assessment.Score,
		RiskLevel:                run.assessment.Level,
		ClassificationLabel:      run.classification.Label,
		ClassificationConfidence: run.classification.Confidence,
		Fingerprint:              fingerprint,
		DocumentType:             req.DeclaredType,
		CreatedAt:                now,
	}
	property := contracts.Property{
		PropertyID:   propertyID,
		DocumentType: req.DeclaredType,
		LastOwner:    detail.Owner,
		LastSurvey:   detail.SurveyNumber,
		CreatedAt:    now,
	}

	if err := e.store.InsertVerification(ctx, property, record, detail); err != nil {
		wrapped := contracts.NewError(contracts.KindPersistenceFailed, store.Stage, "persist verification", err)
		e.recordAudit(ctx, contracts.OpVerify, propertyID, contracts.AuditFailure, wrapped.Error())
		return VerifyResult{}, wrapped
	}

	warnings := run.warnings
	if req.Anchor {
		if receipt, err := e.anchor(ctx, propertyID, fingerprint, run.assessment.Score); err != nil {
			warnings = append(warnings, "ledger_anchoring_failed")
			e.recordAudit(ctx, contracts.OpLedgerFailure, propertyID, contracts.AuditFailure, err.Error())
			e.log.WarnContext(ctx, "ledger anchoring failed",
				"property_id", propertyID, "error", err)
		} else {
			record.AnchorReference = receipt.Handle
			record.AnchorBlockHeight = receipt.BlockHeight
			record.AnchorTimestamp = receipt.LedgerTimestamp
			if err := e.store.UpdateAnchor(ctx, verificationID, receipt.Handle, receipt.BlockHeight, receipt.LedgerTimestamp); err != nil {
				wrapped := contracts.NewError(contracts.KindPersistenceFailed, store.Stage, "record anchor", err)
				e.recordAudit(ctx, contracts.OpVerify, propertyID, contracts.AuditFailure, wrapped.Error())
				return VerifyResult{}, wrapped
			}
			e.recordAudit(ctx, contracts.OpLedgerAnchor, propertyID, contracts.AuditSuccess,
				fmt.Sprintf("anchored at height %d", receipt.BlockHeight))
		}
	}

	e.recordAudit(ctx, contracts.OpVerify, propertyID, contracts.AuditSuccess,
		fmt.Sprintf("risk %d (%s)", record.RiskScore, record.RiskLevel))

	return VerifyResult{
		Record:     record,
		Detail:     detail,
		Assessment: run.assessment,
		Warnings:   warnings,
	}, nil
}

// pipelineRun is the intermediate result shared by Verify and CheckTamper.
type pipelineRun struct {
	detail         contracts.VerificationDetail
	classification contracts.Classification
	// canonicalLabel is the floor-filtered label that may enter the
	// fingerprint; empty when confidence is below the floor.
	canonicalLabel string
	assessment     risk.Assessment
	warnings       []string
}

// runPipeline executes extraction through scoring without touching the
// ledger or the store.
func (e *Engine) runPipeline(ctx context.Context, doc []byte, format contracts.FormatHint) (pipelineRun, error) {
	extCtx, cancel := context.WithTimeout(ctx, e.timeouts.Extraction)
	extraction, err := e.extractor.Extract(extCtx, doc, format)
	cancel()
	if err != nil {
		return pipelineRun{}, e.stageError(ctx, ocr.Stage, err)
	}

	cleaned := normalize.Clean(extraction.Text())

	trCtx, cancel := context.WithTimeout(ctx, e.timeouts.Translation)
	translated := e.translator.Run(trCtx, cleaned, extraction.LanguageHint)
	cancel()
	text := translated.Text
	warnings := append([]string(nil), translated.Warnings...)

	type classOut struct {
		c   contracts.Classification
		err error
	}
	classCh := make(chan classOut, 1)
	clCtx, cancelClass := context.WithTimeout(ctx, e.timeouts.Classification)
	defer cancelClass()
	go func() {
		c, err := e.classifier.Classify(clCtx, text)
		classCh <- classOut{c, err}
	}()

	bundle := e.entities.Extract(ctx, text)

	cls := <-classCh
	if cls.err != nil {
		return pipelineRun{}, e.stageError(ctx, classify.Stage, cls.err)
	}
	classification := cls.c
	floored := classify.ApplyFloor(classification, e.confidenceFloor)

	detail := contracts.VerificationDetail{
		Owner:             bundle.Owner,
		SurveyNumber:      bundle.SurveyNumber,
		HissaNumber:       bundle.HissaNumber,
		Village:           bundle.Village,
		Taluk:             bundle.Taluk,
		District:          bundle.District,
		ExtentAcres:       bundle.ExtentAcres,
		ExtentGuntas:      bundle.ExtentGuntas,
		ValidFrom:         bundle.ValidFrom,
		ValidTo:           bundle.ValidTo,
		DigitallySignedOn: bundle.DigitallySignedOn,
		Loans:             bundle.Loans,
		Mutations:         bundle.Mutations,
		CaseNumbers:       bundle.CaseNumbers,
		Dates:             bundle.Dates,
		TextPreview:       preview(text),
		PagesProcessed:    extraction.PagesProcessed,
		CharsOriginal:     extraction.CharsOriginal,
		CharsCleaned:      len(cleaned),
	}

	assessment := e.scorer.Score(detail, floored)

	canonicalLabel := ""
	if floored.Label != contracts.LabelUnknown {
		canonicalLabel = floored.Label
	}

	return pipelineRun{
		detail:         detail,
		classification: classification,
		canonicalLabel: canonicalLabel,
		assessment:     assessment,
		warnings:       warnings,
	}, nil
}

// anchor writes to the ledger under its own deadline and maps backend
// failures to typed errors.
func (e *Engine) anchor(ctx context.Context, propertyID string, fingerprint [32]byte, score int) (ledger.Receipt, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, e.timeouts.Ledger)
	defer cancel()

	receipt, err := e.ledger.Put(ledgerCtx, propertyID, fingerprint, score)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrRejected):
			return ledger.Receipt{}, contracts.NewError(contracts.KindLedgerRejected, ledger.Stage, "entry rejected", err)
		case errors.Is(ledgerCtx.Err(), context.DeadlineExceeded):
			return ledger.Receipt{}, contracts.NewError(contracts.KindDeadlineExceeded, ledger.Stage, "ledger deadline exceeded", err)
		default:
			return ledger.Receipt{}, contracts.NewError(contracts.KindExternalUnavailable, ledger.Stage, "ledger unavailable", err)
		}
	}
	return receipt, nil
}

// stageError normalizes a stage failure: typed errors pass through, context
// expiry maps to deadline or cancellation, anything else is internal.
func (e *Engine) stageError(ctx context.Context, stage string, err error) error {
	var typed *contracts.Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return contracts.NewError(contracts.KindDeadlineExceeded, stage, "stage deadline exceeded", err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return contracts.NewError(contracts.KindCancelled, stage, "cancelled", err)
	default:
		return contracts.NewError(contracts.KindInternal, stage, "stage failed", err)
	}
}

func (e *Engine) recordAudit(ctx context.Context, op contracts.AuditOperation, propertyID string, status contracts.AuditStatus, message string) {
	if err := e.audit.Record(ctx, op, propertyID, status, message); err != nil {
		e.log.ErrorContext(ctx, "audit record failed", "operation", string(op), "error", err)
	}
}

func preview(text string) string {
	if len(text) <= TextPreviewBound {
		return text
	}
	cut := TextPreviewBound
	for cut > 0 && !utf8RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
