package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/proptrust/engine/pkg/canonical"
	"github.com/proptrust/engine/pkg/classify"
	"github.com/proptrust/engine/pkg/contracts"
	"github.com/proptrust/engine/pkg/ledger"
	"github.com/proptrust/engine/pkg/risk"
)

// Tamper warning annotations.
const (
	WarnRiskScoreChanged = "RISK_SCORE_CHANGED"
	WarnNoStoredDetail   = "NO_STORED_DETAIL"
)

// CheckTamper re-runs the pipeline on new document bytes and contrasts the
// result with the property's anchored fingerprint. It never writes to the
// ledger; the outcome is persisted as a TamperCheck either way.
func (e *Engine) CheckTamper(ctx context.Context, propertyID string, doc []byte, format contracts.FormatHint) (res contracts.TamperCheck, err error) {
	if e.telemetry != nil {
		var done func(error)
		ctx, done = e.telemetry.TrackOperation(ctx, "tamper_check",
			attribute.String("property_id", propertyID))
		defer func() { done(err) }()
	}

	if propertyID == "" {
		return contracts.TamperCheck{}, contracts.NewError(contracts.KindBadInput, "tamper_check", "empty property id", nil)
	}
	if len(doc) == 0 {
		return contracts.TamperCheck{}, contracts.NewError(contracts.KindBadInput, "tamper_check", "empty document", nil)
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, e.timeouts.Ledger)
	anchored, err := e.ledger.Get(ledgerCtx, propertyID)
	cancel()
	if errors.Is(err, ledger.ErrNotFound) {
		tc := e.newTamperCheck(propertyID, contracts.TamperNotFound, nil)
		e.persistTamperCheck(ctx, tc)
		return tc, nil
	}
	if err != nil {
		tc := e.newTamperCheck(propertyID, contracts.TamperError, []string{"ledger_unavailable"})
		e.persistTamperCheck(ctx, tc)
		return tc, contracts.NewError(contracts.KindExternalUnavailable, ledger.Stage, "ledger unavailable", err)
	}

	run, err := e.runPipeline(ctx, doc, format)
	if err != nil {
		tc := e.newTamperCheck(propertyID, contracts.TamperError, []string{"pipeline_failed"})
		tc.AnchoredFingerprint = anchored.Fingerprint
		e.persistTamperCheck(ctx, tc)
		return tc, err
	}

	in := canonical.Input{
		PropertyID:          propertyID,
		Detail:              run.detail,
		RiskScore:           run.assessment.Score,
		ClassificationLabel: run.canonicalLabel,
	}
	recomputed, err := canonical.Fingerprint(in)
	if err != nil {
		return contracts.TamperCheck{}, contracts.NewError(contracts.KindInternal, "fingerprinting", "canonicalization failed", err)
	}

	tc := e.newTamperCheck(propertyID, contracts.TamperVerified, run.warnings)
	tc.AnchoredFingerprint = anchored.Fingerprint
	tc.RecomputedFingerprint = recomputed
	tc.HashMatched = recomputed == anchored.Fingerprint
	tc.RiskScoreDelta = run.assessment.Score - anchored.RiskScore

	if !tc.HashMatched {
		// Any canonical-field difference is tampering; a pure re-scoring
		// difference is still flagged but annotated so reviewers can tell
		// the two apart.
		tc.Status = contracts.TamperTampered
		tc.Warnings = append(tc.Warnings, e.diffAgainstStored(ctx, propertyID, anchored, in, run.assessment)...)
	}

	e.persistTamperCheck(ctx, tc)
	return tc, nil
}

// diffAgainstStored explains a fingerprint mismatch using the persisted
// record of the anchored verification, located by the anchored fingerprint
// so that later un-anchored verifications do not shadow it. Without stored
// detail the mismatch stands unexplained.
func (e *Engine) diffAgainstStored(ctx context.Context, propertyID string, anchored ledger.Entry, in canonical.Input, current risk.Assessment) []string {
	record, detail, err := e.store.VerificationByFingerprint(ctx, propertyID, anchored.Fingerprint)
	if err != nil {
		return []string{WarnNoStoredDetail}
	}

	var warnings []string

	storedClass := classify.ApplyFloor(contracts.Classification{
		Label:      record.ClassificationLabel,
		Confidence: record.ClassificationConfidence,
	}, e.confidenceFloor)
	storedLabel := ""
	if storedClass.Label != contracts.LabelUnknown {
		storedLabel = storedClass.Label
	}
	storedComparison, errStored := canonical.ComparisonFingerprint(canonical.Input{
		PropertyID:          propertyID,
		Detail:              detail,
		ClassificationLabel: storedLabel,
	})
	newComparison, errNew := canonical.ComparisonFingerprint(in)
	if errStored == nil && errNew == nil && storedComparison == newComparison {
		warnings = append(warnings, WarnRiskScoreChanged)
	}

	warnings = append(warnings, diffCanonicalFields(detail, in.Detail)...)
	if storedLabel != in.ClassificationLabel {
		warnings = append(warnings, "FIELD_CHANGED:classification_label")
	}
	if record.RiskScore != in.RiskScore {
		warnings = append(warnings, fmt.Sprintf("SCORE_CHANGED:%d->%d", anchored.RiskScore, in.RiskScore))
	}

	stored := e.scorer.Score(detail, storedClass)
	warnings = append(warnings, diffFactors(stored.Factors, current.Factors)...)
	return warnings
}

// diffFactors reports the symmetric difference of fired factor codes between
// the stored assessment and the recomputed one.
func diffFactors(stored, current []risk.Factor) []string {
	storedCodes := make(map[string]bool, len(stored))
	for _, f := range stored {
		storedCodes[f.Code] = true
	}
	currentCodes := make(map[string]bool, len(current))
	for _, f := range current {
		currentCodes[f.Code] = true
	}

	var out []string
	for _, f := range current {
		if !storedCodes[f.Code] {
			out = append(out, "FACTOR_ADDED:"+f.Code)
		}
	}
	for _, f := range stored {
		if !currentCodes[f.Code] {
			out = append(out, "FACTOR_REMOVED:"+f.Code)
		}
	}
	return out
}

// diffCanonicalFields names the canonical projection fields whose values
// differ between the stored and recomputed details.
func diffCanonicalFields(prev, cur contracts.VerificationDetail) []string {
	var out []string
	changed := func(field string, differs bool) {
		if differs {
			out = append(out, "FIELD_CHANGED:"+field)
		}
	}

	changed("owner", prev.Owner != cur.Owner)
	changed("survey_number", prev.SurveyNumber != cur.SurveyNumber)
	changed("hissa_number", prev.HissaNumber != cur.HissaNumber)
	changed("village", prev.Village != cur.Village)
	changed("taluk", prev.Taluk != cur.Taluk)
	changed("district", prev.District != cur.District)
	changed("extent", prev.ExtentAcres != cur.ExtentAcres || prev.ExtentGuntas != cur.ExtentGuntas)
	changed("loans", !equalLoans(prev.Loans, cur.Loans))
	changed("case_numbers", !equalStrings(prev.CaseNumbers, cur.CaseNumbers))
	return out
}

func equalLoans(a, b []contracts.LoanEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Amount != b[i].Amount || a[i].Bank != b[i].Bank {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *Engine) newTamperCheck(propertyID string, status contracts.TamperStatus, warnings []string) contracts.TamperCheck {
	if warnings == nil {
		warnings = []string{}
	}
	return contracts.TamperCheck{
		TamperCheckID: e.newID(),
		PropertyID:    propertyID,
		Status:        status,
		Warnings:      warnings,
		CreatedAt:     e.now().UTC(),
	}
}

func (e *Engine) persistTamperCheck(ctx context.Context, tc contracts.TamperCheck) {
	if err := e.store.InsertTamperCheck(ctx, tc); err != nil {
		e.log.ErrorContext(ctx, "persist tamper check failed",
			"property_id", tc.PropertyID, "error", err)
	}
	status := contracts.AuditSuccess
	if tc.Status == contracts.TamperError {
		status = contracts.AuditFailure
	}
	e.recordAudit(ctx, contracts.OpTamperCheck, tc.PropertyID, status,
		fmt.Sprintf("status=%s matched=%t", tc.Status, tc.HashMatched))
}
