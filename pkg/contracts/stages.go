package contracts

// FormatHint declares the container format of uploaded document bytes.
type FormatHint string

const (
	FormatImage FormatHint = "IMAGE"
	FormatPDF   FormatHint = "PDF"
)

// ExtractionResult is the output of the text extraction stage.
type ExtractionResult struct {
	Pages          []string `json:"pages"`
	PagesProcessed int      `json:"pages_processed"`
	CharsOriginal  int      `json:"chars_original"`
	// LanguageHint is an ISO 639-1 code when the provider reports one,
	// empty otherwise.
	LanguageHint string `json:"language_hint,omitempty"`
}

// Text joins the page strings with single newlines.
func (r ExtractionResult) Text() string {
	switch len(r.Pages) {
	case 0:
		return ""
	case 1:
		return r.Pages[0]
	}
	n := 0
	for _, p := range r.Pages {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range r.Pages {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, p...)
	}
	return string(b)
}

// TranslationResult carries the translator stage output. When the
// translator is skipped or fails, Text holds the input unchanged and
// Warnings explains why.
type TranslationResult struct {
	Text       string   `json:"text"`
	Translated bool     `json:"translated"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Span is a candidate value produced by the entity extraction layers.
type Span struct {
	Field string `json:"field"`
	Value string `json:"value"`
	// Priority orders rule matches; lower is stronger. Model spans carry
	// the maximum priority and compete on Confidence instead.
	Priority   int     `json:"priority"`
	Confidence float64 `json:"confidence"`
	// Offset is the first byte offset of the match in the source text,
	// used to order list fields by appearance.
	Offset int `json:"offset"`
}

// EntityBundle is the resolved output of the entity extraction stage.
// Absent singleton fields are empty strings; absent list fields are empty
// slices. The extractor never emits fields outside this schema.
type EntityBundle struct {
	Owner             string          `json:"owner"`
	SurveyNumber      string          `json:"survey_number"`
	HissaNumber       string          `json:"hissa_number"`
	Village           string          `json:"village"`
	Taluk             string          `json:"taluk"`
	District          string          `json:"district"`
	ExtentAcres       int             `json:"extent_acres"`
	ExtentGuntas      int             `json:"extent_guntas"`
	ValidFrom         string          `json:"valid_from,omitempty"`
	ValidTo           string          `json:"valid_to,omitempty"`
	DigitallySignedOn string          `json:"digitally_signed_on,omitempty"`
	Loans             []LoanEntry     `json:"loans"`
	Mutations         []MutationEntry `json:"mutations"`
	CaseNumbers       []string        `json:"case_numbers"`
	Dates             []string        `json:"dates"`
}

// Classification is the document classifier stage output.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels. Confidence below the configured floor collapses the
// label to LabelUnknown before it can influence the fingerprint.
const (
	LabelClearTitle       = "CLEAR_TITLE"
	LabelLoanDetected     = "LOAN_DETECTED"
	LabelCourtCase        = "COURT_CASE"
	LabelMutationPending  = "MUTATION_PENDING"
	LabelForgerySuspected = "FORGERY_SUSPECTED"
	LabelUnknown          = "UNKNOWN"
)
