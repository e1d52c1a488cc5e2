package crossdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proptrust/engine/pkg/contracts"
)

func rtcDetail() contracts.VerificationDetail {
	return contracts.VerificationDetail{
		Owner:        "RAVI KUMAR",
		SurveyNumber: "45/2A",
		Dates:        []string{"01/04/2020", "31/03/2035"},
		Loans:        []contracts.LoanEntry{{Amount: 50000000, Bank: "STATE BANK OF INDIA"}},
	}
}

func mrDetail() contracts.VerificationDetail {
	return contracts.VerificationDetail{
		Owner:        "RAVI KUMAR",
		SurveyNumber: "45/2A",
		Dates:        []string{"01/04/2020"},
		Loans:        []contracts.LoanEntry{{Amount: 50000000, Bank: "SBI"}},
	}
}

func TestCompare_ConsistentPairVerified(t *testing.T) {
	rep := Compare(rtcDetail(), mrDetail())
	assert.Equal(t, StatusVerified, rep.Status)
	assert.Equal(t, 100, rep.MatchScore)
	assert.Equal(t, 5, rep.TotalChecks)
	assert.Equal(t, 5, rep.PassedChecks)
	assert.Zero(t, rep.FailedChecks)
}

func TestCompare_OwnerOCRNoiseStillMatches(t *testing.T) {
	mr := mrDetail()
	mr.Owner = "RAVI KUMAH"

	rep := Compare(rtcDetail(), mr)
	assert.Equal(t, StatusVerified, rep.Status)
	for _, c := range rep.Checks {
		if c.Field == "owner_names" {
			assert.True(t, c.Match)
		}
	}
}

func TestCompare_SurveyAndOwnerMismatch(t *testing.T) {
	mr := mrDetail()
	mr.Owner = "SURESH GOWDA"
	mr.SurveyNumber = "99/1B"

	rep := Compare(rtcDetail(), mr)
	assert.Equal(t, StatusMinorMismatch, rep.Status)
	assert.Equal(t, 2, rep.FailedChecks)
	assert.Equal(t, 60, rep.MatchScore)
}

func TestCompare_LoanPresenceDiffers(t *testing.T) {
	mr := mrDetail()
	mr.Loans = nil

	rep := Compare(rtcDetail(), mr)
	assert.Equal(t, StatusVerified, rep.Status)
	assert.Equal(t, 80, rep.MatchScore)
	assert.Equal(t, 1, rep.FailedChecks)
}

func TestCompare_DisjointDatesAreAdvisory(t *testing.T) {
	mr := mrDetail()
	mr.Dates = []string{"15/08/2021"}

	rep := Compare(rtcDetail(), mr)
	assert.Zero(t, rep.FailedChecks)
	assert.Equal(t, 4, rep.PassedChecks)
	assert.Equal(t, 80, rep.MatchScore)
	for _, c := range rep.Checks {
		if c.Field == "dates" {
			assert.False(t, c.Match)
			assert.True(t, c.Warning)
		}
	}
}

func TestCompare_EmptyMutationRegisterWarns(t *testing.T) {
	rep := Compare(rtcDetail(), contracts.VerificationDetail{})
	for _, c := range rep.Checks {
		if c.Field == "mutation_status" {
			assert.False(t, c.Match)
			assert.True(t, c.Warning)
		}
	}
	// Surveys, owners, and loans fail against an empty detail, but the
	// incomplete register itself stays advisory.
	assert.Equal(t, 3, rep.FailedChecks)
	assert.Equal(t, StatusMajorMismatch, rep.Status)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Ravi Kumar", "RAVI KUMAR"))
	assert.InDelta(t, 0.9, Similarity("RAVI KUMAR", "RAVI KUMAH"), 0.01)
	assert.Less(t, Similarity("RAVI KUMAR", "SURESH GOWDA"), OwnerSimilarityThreshold)
}
