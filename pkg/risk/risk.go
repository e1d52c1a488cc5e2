// Package risk scores a verification detail. Scoring is a pure additive
// function over independent factors with fixed weights, clamped to 100,
// so every score is auditable from its factor list.
package risk

import (
	"time"

	"github.com/proptrust/engine/pkg/contracts"
)

// DefaultCharsFloor is the cleaned-text length below which data quality is
// considered too low to trust the extraction.
const DefaultCharsFloor = 200

// Factor codes. Order here is the emission order.
const (
	CodeLoanPresent        = "loan_present"
	CodeLegalCase          = "legal_case"
	CodeMutationPending    = "mutation_pending"
	CodeOwnerMissing       = "owner_missing"
	CodeSurveyMissing      = "survey_missing"
	CodeDataQualityLow     = "data_quality_low"
	CodeValidityExpired    = "validity_expired"
	CodeClassifierHighRisk = "classifier_high_risk"
)

// Factor is one fired scoring component.
type Factor struct {
	Code        string `json:"code"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// Assessment is the scorer output.
type Assessment struct {
	Score           int                 `json:"score"`
	Level           contracts.RiskLevel `json:"level"`
	Factors         []Factor            `json:"factors"`
	Recommendations []string            `json:"recommendations"`
}

// Scorer evaluates the factor table. Zero value is not usable; construct
// with New.
type Scorer struct {
	charsFloor int
	now        func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithCharsFloor overrides the data-quality character floor.
func WithCharsFloor(floor int) Option {
	return func(s *Scorer) { s.charsFloor = floor }
}

// WithClock fixes the clock used for validity expiry. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New builds a Scorer.
func New(opts ...Option) *Scorer {
	s := &Scorer{charsFloor: DefaultCharsFloor, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recommendations is the static factor-to-advice mapping.
var recommendations = map[string]string{
	CodeLoanPresent:        "Obtain a loan clearance or no-objection certificate from the listed bank before transacting.",
	CodeLegalCase:          "Verify the cited case status with the jurisdictional court before proceeding.",
	CodeMutationPending:    "Confirm the pending mutation is completed and reflected in the record of rights.",
	CodeOwnerMissing:       "Owner could not be read from the document; verify ownership against the original record.",
	CodeSurveyMissing:      "Survey number could not be read; cross-check the parcel identity with the village accountant.",
	CodeDataQualityLow:     "Document scan quality is poor; re-scan at higher resolution and re-verify.",
	CodeValidityExpired:    "The record's validity period has lapsed; obtain a current certified copy.",
	CodeClassifierHighRisk: "Document was flagged as high risk; seek independent legal review before relying on it.",
}

// Score evaluates the factor table against one detail and classification.
// Factors are emitted in table order so identical inputs always produce an
// identical assessment.
func (s *Scorer) Score(d contracts.VerificationDetail, c contracts.Classification) Assessment {
	var factors []Factor
	add := func(code string, weight int, description string) {
		factors = append(factors, Factor{Code: code, Weight: weight, Description: description})
	}

	if len(d.Loans) > 0 {
		add(CodeLoanPresent, 30, "At least one loan or encumbrance is recorded against the property.")
	}
	if len(d.CaseNumbers) > 0 {
		add(CodeLegalCase, 15, "One or more court case numbers appear on the record.")
	}
	pendingMutation := c.Label == contracts.LabelMutationPending
	for _, m := range d.Mutations {
		if m.Pending {
			pendingMutation = true
			break
		}
	}
	if pendingMutation {
		add(CodeMutationPending, 20, "A mutation entry is pending and ownership may be in transition.")
	}
	if d.Owner == "" {
		add(CodeOwnerMissing, 15, "No owner name could be extracted from the document.")
	}
	if d.SurveyNumber == "" {
		add(CodeSurveyMissing, 15, "No survey number could be extracted from the document.")
	}
	if d.CharsCleaned < s.charsFloor {
		add(CodeDataQualityLow, 10, "Cleaned text is too short to trust the extraction.")
	}
	if expired(d.ValidTo, s.now()) {
		add(CodeValidityExpired, 10, "The record's validity period has ended.")
	}
	if c.Label == contracts.LabelCourtCase || c.Label == contracts.LabelForgerySuspected {
		add(CodeClassifierHighRisk, 20, "The document classifier flagged a high-risk label.")
	}

	score := 0
	for _, f := range factors {
		score += f.Weight
	}
	if score > 100 {
		score = 100
	}

	recs := make([]string, 0, len(factors))
	for _, f := range factors {
		recs = append(recs, recommendations[f.Code])
	}

	return Assessment{
		Score:           score,
		Level:           contracts.LevelOf(score),
		Factors:         factors,
		Recommendations: recs,
	}
}

// dateLayouts covers the date shapes the extractor emits.
var dateLayouts = []string{"02/01/2006", "2/1/2006", "02-01-2006", "2006/01/02", "2006-01-02"}

// expired reports whether validTo names a day strictly before today.
// Unparseable or absent dates never fire the factor.
func expired(validTo string, now time.Time) bool {
	if validTo == "" {
		return false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, validTo)
		if err != nil {
			continue
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return t.Before(today)
	}
	return false
}
