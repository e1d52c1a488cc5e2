package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelOf(t *testing.T) {
	cases := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLow},
		{30, RiskLow},
		{31, RiskMedium},
		{60, RiskMedium},
		{61, RiskHigh},
		{100, RiskHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelOf(tc.score), "score %d", tc.score)
	}
}

func TestParseDocumentType(t *testing.T) {
	assert.Equal(t, DocTypeRTC, ParseDocumentType("RTC"))
	assert.Equal(t, DocTypeSaleDeed, ParseDocumentType("SALE_DEED"))
	assert.Equal(t, DocTypeUnknown, ParseDocumentType("rtc"))
	assert.Equal(t, DocTypeUnknown, ParseDocumentType(""))
}

func TestKindOf(t *testing.T) {
	typed := NewError(KindLedgerRejected, "ledger_anchoring", "score out of range", nil)
	assert.Equal(t, KindLedgerRejected, KindOf(typed))
	assert.Equal(t, KindLedgerRejected, KindOf(fmt.Errorf("anchor: %w", typed)))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, IsKind(typed, KindLedgerRejected))
	assert.False(t, IsKind(typed, KindBadInput))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	typed := NewError(KindPersistenceFailed, "persistence", "insert failed", cause)
	assert.ErrorIs(t, typed, cause)
	assert.Contains(t, typed.Error(), "PERSISTENCE_FAILED")
	assert.Contains(t, typed.Error(), "persistence")
}

func TestExtractionResultText(t *testing.T) {
	assert.Equal(t, "", ExtractionResult{}.Text())
	assert.Equal(t, "one", ExtractionResult{Pages: []string{"one"}}.Text())
	assert.Equal(t, "one\ntwo", ExtractionResult{Pages: []string{"one", "two"}}.Text())
}
