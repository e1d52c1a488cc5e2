package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptrust/engine/pkg/contracts"
)

func classifyText(t *testing.T, text string) contracts.Classification {
	t.Helper()
	c, err := NewRuleClassifier().Classify(context.Background(), text)
	require.NoError(t, err)
	return c
}

func TestRuleClassifier_Labels(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"loan", "Loan of Rs. 5,00,000 from State Bank of India", contracts.LabelLoanDetected},
		{"mortgage", "property mortgaged to Canara Bank", contracts.LabelLoanDetected},
		{"civil suit", "Civil Suit No. 123/2019 pending before the court", contracts.LabelCourtCase},
		{"stay order", "stay order issued against transfer", contracts.LabelCourtCase},
		{"mutation pending", "MR No. 456/2018 mutation entry pending before tahsildar", contracts.LabelMutationPending},
		{"forgery", "seal appears forged on the second page", contracts.LabelForgerySuspected},
		{"clear title", "Survey No: 45/2A Owner: Ravi Kumar Village: Hebbal", contracts.LabelClearTitle},
		{"no signal", "completely unrelated text with nothing useful", contracts.LabelUnknown},
		{"empty", "", contracts.LabelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyText(t, tt.text).Label)
		})
	}
}

func TestRuleClassifier_CourtBeatsLoan(t *testing.T) {
	// A record with both signals is the court-case record; litigation is the
	// stronger title defect.
	c := classifyText(t, "Loan Rs. 2,00,000 from SBI. Civil Suit No. 9/2020 pending.")
	assert.Equal(t, contracts.LabelCourtCase, c.Label)
}

func TestRuleClassifier_ConfidenceInRange(t *testing.T) {
	c := classifyText(t, "Loan of Rs. 5,00,000")
	assert.Greater(t, c.Confidence, 0.0)
	assert.LessOrEqual(t, c.Confidence, 1.0)
}

func TestApplyFloor(t *testing.T) {
	high := contracts.Classification{Label: contracts.LabelLoanDetected, Confidence: 0.9}
	assert.Equal(t, high, ApplyFloor(high, DefaultConfidenceFloor))

	low := contracts.Classification{Label: contracts.LabelLoanDetected, Confidence: 0.4}
	got := ApplyFloor(low, DefaultConfidenceFloor)
	assert.Equal(t, contracts.LabelUnknown, got.Label)
	assert.Equal(t, 0.4, got.Confidence)
}

func TestRuleClassifier_Deterministic(t *testing.T) {
	text := "Survey No: 10/3 with mortgage noted, Civil Suit No. 1/2021"
	first := classifyText(t, text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, classifyText(t, text))
	}
}
