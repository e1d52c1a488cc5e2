// Package classify wraps the document-classifier capability. The local
// implementation is keyword-rule scoring over cleaned text; a trained model
// can replace it behind the same interface without touching engine code.
// Classification runs concurrently with entity extraction, so it sees only
// the text, never the entity bundle.
package classify

import (
	"context"
	"regexp"

	"github.com/proptrust/engine/pkg/contracts"
)

// Stage name used in typed errors.
const Stage = "classification"

// DefaultConfidenceFloor collapses low-confidence labels to UNKNOWN so
// classifier drift cannot move the fingerprint.
const DefaultConfidenceFloor = 0.5

// Classifier is the capability contract.
type Classifier interface {
	Classify(ctx context.Context, text string) (contracts.Classification, error)
	Close() error
}

// ApplyFloor collapses a classification below the floor to UNKNOWN. The raw
// confidence is preserved for reporting.
func ApplyFloor(c contracts.Classification, floor float64) contracts.Classification {
	if c.Confidence < floor {
		return contracts.Classification{Label: contracts.LabelUnknown, Confidence: c.Confidence}
	}
	return c
}

// labelRule scores one label from keyword evidence. Rules are evaluated in
// order; the first hit wins, so more specific signals sit first.
type labelRule struct {
	label      string
	confidence float64
	signal     *regexp.Regexp
}

var labelRules = []labelRule{
	{contracts.LabelForgerySuspected, 0.75,
		regexp.MustCompile(`(?i)\b(forg(?:ed|ery)|fabricated|tamper(?:ed|ing)|fake\s+(?:document|record|seal)|counterfeit)\b`)},
	{contracts.LabelCourtCase, 0.85,
		regexp.MustCompile(`(?i)(?:civil\s+suit|criminal\s+case|\bO\.?S\.?\s*No|\bC\.?S\.?\s*No|\bCC\s*No|court\s+(?:order|case|injunction)|litigation|stay\s+order)`)},
	{contracts.LabelLoanDetected, 0.9,
		regexp.MustCompile(`(?i)\b(loan|mortgage|hypothecat\w*|charge\s+(?:created|noted)|pledged?|encumb\w*)\b`)},
	{contracts.LabelMutationPending, 0.8,
		regexp.MustCompile(`(?i)\bmutation\b[^.\n]{0,80}\bpending\b|\bpending\b[^.\n]{0,80}\bmutation\b|\bMR\s*No[^.\n]{0,80}\bpending\b`)},
	{contracts.LabelClearTitle, 0.85,
		regexp.MustCompile(`(?i)(?:survey\s*(?:no|number)|sy\.?\s*no)`)},
}

// RuleClassifier is the deterministic keyword classifier.
type RuleClassifier struct{}

// NewRuleClassifier returns the local keyword-rule classifier.
func NewRuleClassifier() *RuleClassifier { return &RuleClassifier{} }

func (c *RuleClassifier) Classify(_ context.Context, text string) (contracts.Classification, error) {
	for _, r := range labelRules {
		if r.signal.MatchString(text) {
			return contracts.Classification{Label: r.label, Confidence: r.confidence}, nil
		}
	}
	return contracts.Classification{Label: contracts.LabelUnknown, Confidence: 0.0}, nil
}

func (c *RuleClassifier) Close() error { return nil }
