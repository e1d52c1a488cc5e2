// Package extract implements the hybrid rule+model entity extraction stage.
// The rule layer is a set of named, ordered regex patterns; the model layer
// is an injected capability supplying additional candidate spans. Resolution
// is deterministic, so identical cleaned text always yields an identical
// entity bundle.
package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/proptrust/engine/pkg/contracts"
)

// Stage name used in typed errors.
const Stage = "entity_extraction"

// DefaultModelFloor is the minimum model confidence considered when no rule
// matched a singleton field.
const DefaultModelFloor = 0.5

// ModelClient supplies model-predicted candidate spans. A nil client
// disables the model layer; extraction is then purely rule-based.
type ModelClient interface {
	Predict(ctx context.Context, text string) ([]contracts.Span, error)
	Close() error
}

// Extractor resolves rule and model candidates into an EntityBundle.
type Extractor struct {
	model ModelClient
	floor float64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel attaches the model layer.
func WithModel(m ModelClient) Option {
	return func(e *Extractor) { e.model = m }
}

// WithModelFloor overrides the model confidence floor.
func WithModelFloor(floor float64) Option {
	return func(e *Extractor) { e.floor = floor }
}

// New builds an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{floor: DefaultModelFloor}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract resolves the fixed field schema from cleaned text. Entities that
// do not match are absent, never an error; the only failure mode is a model
// layer that breaks mid-call, and even that degrades to rule-only output.
func (e *Extractor) Extract(ctx context.Context, text string) contracts.EntityBundle {
	spans := ruleSpans(text)

	if e.model != nil {
		modelSpans, err := e.model.Predict(ctx, text)
		if err == nil {
			for _, s := range modelSpans {
				if s.Confidence >= e.floor {
					s.Priority = modelPriority
					spans[s.Field] = append(spans[s.Field], s)
				}
			}
		}
	}

	dates := validDates(spans[FieldDate])
	surveySpan, hissaFromSurvey := resolveSurvey(spans[FieldSurvey], dates)

	bundle := contracts.EntityBundle{
		Owner:             cleanPersonName(singleton(spans[FieldOwner])),
		SurveyNumber:      surveySpan,
		HissaNumber:       firstNonEmpty(hissaFromSurvey, singleton(spans[FieldHissa])),
		Village:           cleanPlaceName(singleton(spans[FieldVillage])),
		Taluk:             cleanPlaceName(singleton(spans[FieldTaluk])),
		District:          cleanPlaceName(singleton(spans[FieldDistrict])),
		ValidFrom:         singleton(spans[FieldValidFrom]),
		ValidTo:           singleton(spans[FieldValidTo]),
		DigitallySignedOn: singleton(spans[FieldSignedDate]),
		Loans:             resolveLoans(text, spans[FieldLoanAmount], spans[FieldBank]),
		Mutations:         resolveMutations(text, spans[FieldMutation]),
		CaseNumbers:       dedupeOrdered(spans[FieldCase]),
		Dates:             dates,
	}

	bundle.ExtentAcres, bundle.ExtentGuntas = resolveExtent(text)
	return bundle
}

// modelPriority sorts after every rule priority, so rules always win
// singleton fields when both layers produced a candidate.
const modelPriority = 1 << 20

// ruleSpans runs every pattern of every field over the text.
func ruleSpans(text string) map[string][]contracts.Span {
	out := make(map[string][]contracts.Span, len(rulePatterns))
	for field, patterns := range rulePatterns {
		for prio, p := range patterns {
			for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
				start, end := m[0], m[1]
				if len(m) >= 4 && m[2] >= 0 {
					start, end = m[2], m[3]
				}
				out[field] = append(out[field], contracts.Span{
					Field:    field,
					Value:    normValue(text[start:end]),
					Priority: prio,
					Offset:   m[0],
				})
			}
		}
	}
	return out
}

// singleton picks the winner for a singleton field: lowest priority, then
// earliest appearance.
func singleton(spans []contracts.Span) string {
	if len(spans) == 0 {
		return ""
	}
	best := spans[0]
	for _, s := range spans[1:] {
		if s.Priority < best.Priority || (s.Priority == best.Priority && s.Offset < best.Offset) {
			best = s
		}
	}
	return best.Value
}

// dedupeOrdered unions list-field spans, de-duplicated by normalized string,
// ordered by first appearance in the source text.
func dedupeOrdered(spans []contracts.Span) []string {
	sorted := make([]contracts.Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	seen := make(map[string]bool, len(sorted))
	out := make([]string, 0, len(sorted))
	for _, s := range sorted {
		key := strings.ToUpper(s.Value)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s.Value)
	}
	return out
}

var (
	dayMonthYear = regexp.MustCompile(`^\d{1,2}[/\-]\d{1,2}[/\-]\d{4}$`)
	yearFirst    = regexp.MustCompile(`^\d{4}[/\-]\d{1,2}[/\-]\d{1,2}$`)
	surveyShape  = regexp.MustCompile(`^\d{1,4}([/\-]\d{1,3}[A-Za-z]?)?$`)
	shortRatio   = regexp.MustCompile(`^\d{1,2}[/\-]\d{1,2}$`)
)

// validDates keeps only candidates carrying a four-digit year, de-duplicated
// in order of appearance.
func validDates(spans []contracts.Span) []string {
	kept := spans[:0:0]
	for _, s := range spans {
		if dayMonthYear.MatchString(s.Value) || yearFirst.MatchString(s.Value) {
			kept = append(kept, s)
		}
	}
	return dedupeOrdered(kept)
}

// resolveSurvey picks the survey number and splits a hissa suffix when the
// match carries one ("45/2A" -> survey 45/2A, hissa 2A). Bare short ratios
// that read as dates (both parts <= 12, no year) are rejected; this is the
// survey-vs-date disambiguation land records need because "4/5" is far more
// often a day/month fragment than a survey.
func resolveSurvey(spans []contracts.Span, dates []string) (survey, hissa string) {
	candidates := make([]contracts.Span, 0, len(spans))
	for _, s := range spans {
		v := strings.ReplaceAll(s.Value, " ", "")
		if !surveyShape.MatchString(v) || len(v) > 20 {
			continue
		}
		if s.Priority >= 2 && looksLikeDateFragment(v, dates) {
			continue
		}
		s.Value = v
		candidates = append(candidates, s)
	}
	best := singleton(candidates)
	if best == "" {
		return "", ""
	}
	if i := strings.IndexAny(best, "/-"); i >= 0 {
		return best, best[i+1:]
	}
	return best, ""
}

func looksLikeDateFragment(v string, dates []string) bool {
	if !shortRatio.MatchString(v) {
		return false
	}
	for _, d := range dates {
		if strings.HasPrefix(d, v) {
			return true
		}
	}
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == '/' || r == '-' })
	return len(parts) == 2 && len(parts[0]) <= 2 && len(parts[1]) <= 2 &&
		atoiSafe(parts[0]) <= 12 && atoiSafe(parts[1]) <= 31
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// normValue trims and NFC-normalizes an extracted string.
func normValue(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// reservedTail lists form labels that greedy name captures can swallow when
// the next label follows on the same line or the next one.
var reservedTail = map[string]bool{
	"OWNER": true, "SURVEY": true, "VILLAGE": true, "TALUK": true,
	"TALUKA": true, "DISTRICT": true, "EXTENT": true, "HOBLI": true,
	"VALID": true, "KHATA": true, "HISSA": true, "NAME": true,
}

// cleanPersonName collapses inner whitespace, drops swallowed trailing form
// labels and upper-cases, matching the canonical-form normalization so the
// extracted value round-trips through the fingerprint without a second
// rewrite.
func cleanPersonName(s string) string {
	words := strings.Fields(strings.ToUpper(s))
	for len(words) > 0 && reservedTail[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func cleanPlaceName(s string) string {
	return cleanPersonName(s)
}
