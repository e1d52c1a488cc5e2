package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/proptrust/engine/pkg/contracts"
)

// minLoanPaisa filters OCR number noise: amounts under ₹1,000 are not loans
// on a land record.
const minLoanPaisa = 1000 * 100

// bankContextWindow is how far (in bytes) a bank mention may sit from a loan
// amount and still be attributed to it.
const bankContextWindow = 160

// loanContextBound caps the stored context snippet.
const loanContextBound = 120

// ParseAmountPaisa converts an extracted currency string to paisa. Indian
// digit grouping (5,00,000) and plain decimals are both accepted. Returns
// false when the string does not read as an amount.
func ParseAmountPaisa(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/-")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	rupees, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || rupees < 0 {
		return 0, false
	}

	paisa := rupees * 100
	switch len(frac) {
	case 0:
	case 1:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, false
		}
		paisa += d * 10
	case 2:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, false
		}
		paisa += d
	default:
		return 0, false
	}
	return paisa, true
}

// resolveLoans pairs amount spans with the nearest bank mention within the
// context window and de-duplicates by (amount, bank). Output order is
// amount descending then bank, which matches the canonical-form ordering.
func resolveLoans(text string, amounts, banks []contracts.Span) []contracts.LoanEntry {
	type key struct {
		amount int64
		bank   string
	}
	seen := make(map[key]bool)
	loans := make([]contracts.LoanEntry, 0, len(amounts))

	for _, a := range amounts {
		paisa, ok := ParseAmountPaisa(a.Value)
		if !ok || paisa < minLoanPaisa {
			continue
		}
		bank := nearestBank(a.Offset, banks)
		k := key{paisa, bank}
		if seen[k] {
			continue
		}
		seen[k] = true
		loans = append(loans, contracts.LoanEntry{
			Amount:  paisa,
			Bank:    bank,
			Context: contextSnippet(text, a.Offset),
		})
	}

	sort.SliceStable(loans, func(i, j int) bool {
		if loans[i].Amount != loans[j].Amount {
			return loans[i].Amount > loans[j].Amount
		}
		return loans[i].Bank < loans[j].Bank
	})
	return loans
}

func nearestBank(offset int, banks []contracts.Span) string {
	best, bestDist := "", bankContextWindow+1
	for _, b := range banks {
		dist := offset - b.Offset
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = b.Value, dist
		}
	}
	return CanonicalBank(best)
}

func contextSnippet(text string, offset int) string {
	start := offset - loanContextBound/2
	if start < 0 {
		start = 0
	}
	end := offset + loanContextBound/2
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

var pendingNearby = regexp.MustCompile(`(?i)pending`)

// resolveMutations builds the mutation list, flagging entries whose context
// mentions a pending state.
func resolveMutations(text string, spans []contracts.Span) []contracts.MutationEntry {
	sorted := make([]contracts.Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	seen := make(map[string]bool)
	out := make([]contracts.MutationEntry, 0, len(sorted))
	for _, s := range sorted {
		if s.Value == "" || seen[s.Value] {
			continue
		}
		seen[s.Value] = true
		ctx := contextSnippet(text, s.Offset)
		out = append(out, contracts.MutationEntry{
			RecordNumber: s.Value,
			Description:  ctx,
			Pending:      pendingNearby.MatchString(ctx),
		})
	}
	return out
}

const guntasPerAcre = 40

var extentAcresGuntas = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*Acres?\s*(?:(\d{1,2})\s*Guntas?)?`)

// resolveExtent reads "2 Acres 10 Guntas" shapes into two integer fields.
// A fractional acre value is folded into guntas (0.5 acre = 20 guntas).
func resolveExtent(text string) (acres, guntas int) {
	m := extentAcresGuntas.FindStringSubmatch(text)
	if m == nil {
		return 0, 0
	}
	whole, frac := m[1], ""
	if i := strings.IndexByte(whole, '.'); i >= 0 {
		whole, frac = whole[:i], whole[i+1:]
	}
	acres, _ = strconv.Atoi(whole)
	if frac != "" {
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err == nil {
			guntas += int(f*guntasPerAcre + 0.5)
		}
	}
	if m[2] != "" {
		g, _ := strconv.Atoi(m[2])
		guntas += g
	}
	if guntas >= guntasPerAcre {
		acres += guntas / guntasPerAcre
		guntas %= guntasPerAcre
	}
	return acres, guntas
}
