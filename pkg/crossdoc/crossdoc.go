// Package crossdoc compares the extracted entities of an RTC against its
// Mutation Register and scores their consistency. The comparison is pure:
// both details are loaded by the caller.
package crossdoc

import (
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/proptrust/engine/pkg/contracts"
)

// Status buckets a match score.
type Status string

const (
	StatusVerified      Status = "VERIFIED"
	StatusMinorMismatch Status = "MINOR_MISMATCH"
	StatusMajorMismatch Status = "MAJOR_MISMATCH"
)

// OwnerSimilarityThreshold is the minimum normalized edit similarity for
// two owner names to count as the same person. OCR noise routinely mangles
// a character or two, so exact equality is too strict.
const OwnerSimilarityThreshold = 0.7

// Check is one field comparison. A failed check with Warning set is
// advisory: it does not count against the match score.
type Check struct {
	Field     string   `json:"field"`
	Match     bool     `json:"match"`
	Warning   bool     `json:"warning,omitempty"`
	RTCValues []string `json:"rtc_values,omitempty"`
	MRValues  []string `json:"mr_values,omitempty"`
	Message   string   `json:"message"`
}

// Report is the scored outcome of one RTC-vs-MR comparison.
type Report struct {
	Status       Status  `json:"status"`
	MatchScore   int     `json:"match_score"`
	TotalChecks  int     `json:"total_checks"`
	PassedChecks int     `json:"passed_checks"`
	FailedChecks int     `json:"failed_checks"`
	Checks       []Check `json:"checks"`
}

// Compare runs the consistency checks between an RTC detail and an MR
// detail: survey numbers, owner names, dates, mutation-register
// completeness, and loan presence. MatchScore is passed/total on a 0-100
// scale; VERIFIED at 80 and above, MINOR_MISMATCH at 60 and above,
// MAJOR_MISMATCH below that.
func Compare(rtc, mr contracts.VerificationDetail) Report {
	checks := []Check{
		compareSurveys(surveyValues(rtc), surveyValues(mr)),
		compareOwners(ownerValues(rtc), ownerValues(mr)),
		compareDates(rtc.Dates, mr.Dates),
		mutationStatus(mr),
		compareLoans(rtc, mr),
	}

	rep := Report{Checks: checks, TotalChecks: len(checks)}
	for _, c := range checks {
		switch {
		case c.Match:
			rep.PassedChecks++
		case c.Warning:
			// Advisory only.
		default:
			rep.FailedChecks++
		}
	}
	rep.MatchScore = int(math.Round(float64(rep.PassedChecks) / float64(rep.TotalChecks) * 100))
	switch {
	case rep.MatchScore >= 80:
		rep.Status = StatusVerified
	case rep.MatchScore >= 60:
		rep.Status = StatusMinorMismatch
	default:
		rep.Status = StatusMajorMismatch
	}
	return rep
}

func surveyValues(d contracts.VerificationDetail) []string {
	if d.SurveyNumber == "" {
		return nil
	}
	return []string{d.SurveyNumber}
}

func ownerValues(d contracts.VerificationDetail) []string {
	if d.Owner == "" {
		return nil
	}
	return []string{d.Owner}
}

func compareSurveys(rtc, mr []string) Check {
	common := intersect(rtc, mr)
	switch {
	case len(common) > 0:
		return Check{
			Field: "survey_numbers", Match: true, RTCValues: rtc, MRValues: mr,
			Message: "Survey numbers match: " + strings.Join(common, ", "),
		}
	case len(rtc) == 0 && len(mr) == 0:
		return Check{
			Field: "survey_numbers", Match: true, Warning: true,
			Message: "No survey numbers found in either document",
		}
	default:
		return Check{
			Field: "survey_numbers", Match: false, RTCValues: rtc, MRValues: mr,
			Message: fmt.Sprintf("Survey number mismatch: RTC %v vs MR %v", rtc, mr),
		}
	}
}

func compareOwners(rtc, mr []string) Check {
	if len(rtc) == 0 && len(mr) == 0 {
		return Check{
			Field: "owner_names", Match: true, Warning: true,
			Message: "No owner names found in either document",
		}
	}

	best := 0.0
	for _, a := range rtc {
		for _, b := range mr {
			if s := Similarity(a, b); s > best {
				best = s
			}
		}
	}

	if best >= OwnerSimilarityThreshold {
		return Check{
			Field: "owner_names", Match: true, RTCValues: rtc, MRValues: mr,
			Message: fmt.Sprintf("Owner names match with %d%% similarity", int(math.Round(best*100))),
		}
	}
	return Check{
		Field: "owner_names", Match: false, RTCValues: rtc, MRValues: mr,
		Message: fmt.Sprintf("Owner name mismatch: RTC %v vs MR %v", rtc, mr),
	}
}

func compareDates(rtc, mr []string) Check {
	common := intersect(rtc, mr)
	switch {
	case len(common) > 0:
		return Check{
			Field: "dates", Match: true, RTCValues: rtc, MRValues: mr,
			Message: "Common dates found: " + strings.Join(common, ", "),
		}
	case len(rtc) > 0 && len(mr) > 0:
		// Disjoint date sets are common across the two registers, so this
		// never counts as a failed check.
		return Check{
			Field: "dates", Match: false, Warning: true, RTCValues: rtc, MRValues: mr,
			Message: "No common dates between the documents",
		}
	default:
		return Check{
			Field: "dates", Match: true, Warning: true,
			Message: "Insufficient date information",
		}
	}
}

func mutationStatus(mr contracts.VerificationDetail) Check {
	if mr.Owner != "" || mr.SurveyNumber != "" {
		return Check{
			Field: "mutation_status", Match: true,
			Message: "Mutation register found and validated",
		}
	}
	return Check{
		Field: "mutation_status", Match: false, Warning: true,
		Message: "Mutation register appears incomplete",
	}
}

func compareLoans(rtc, mr contracts.VerificationDetail) Check {
	rtcLoan := len(rtc.Loans) > 0
	mrLoan := len(mr.Loans) > 0
	switch {
	case rtcLoan == mrLoan && rtcLoan:
		return Check{
			Field: "loans", Match: true,
			RTCValues: bankNames(rtc.Loans), MRValues: bankNames(mr.Loans),
			Message: "Loan recorded in both documents",
		}
	case rtcLoan == mrLoan:
		return Check{
			Field: "loans", Match: true,
			Message: "No loans recorded in either document",
		}
	default:
		return Check{
			Field: "loans", Match: false,
			RTCValues: bankNames(rtc.Loans), MRValues: bankNames(mr.Loans),
			Message: fmt.Sprintf("Loan presence differs: RTC %t vs MR %t", rtcLoan, mrLoan),
		}
	}
}

// Similarity is normalized edit similarity in [0, 1], case-insensitive.
func Similarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func intersect(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	var out []string
	for _, v := range b {
		if seen[v] {
			out = append(out, v)
			seen[v] = false
		}
	}
	return out
}

func bankNames(loans []contracts.LoanEntry) []string {
	var out []string
	for _, l := range loans {
		if l.Bank != "" {
			out = append(out, l.Bank)
		}
	}
	return out
}
