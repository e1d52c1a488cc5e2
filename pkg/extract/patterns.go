package extract

import "regexp"

// Field names of the extraction schema. The extractor never emits a field
// outside this set.
const (
	FieldOwner      = "owner"
	FieldSurvey     = "survey_number"
	FieldHissa      = "hissa_number"
	FieldVillage    = "village"
	FieldTaluk      = "taluk"
	FieldDistrict   = "district"
	FieldExtent     = "extent"
	FieldLoanAmount = "loan_amount"
	FieldBank       = "bank"
	FieldCase       = "case_number"
	FieldDate       = "date"
	FieldMutation   = "mutation"
	FieldValidFrom  = "valid_from"
	FieldValidTo    = "valid_to"
	FieldSignedDate = "digitally_signed_on"
)

// pattern is one named rule. Patterns for a field are tried in order;
// Priority is the index, lower wins for singleton fields.
type pattern struct {
	re *regexp.Regexp
}

// rulePatterns is the published rule layer, keyed by field. The shapes come
// from Karnataka RTC/MR printouts: "Survey No", "Sy.No", pattadar/cultivator
// owner labels, khata and hissa numbers, acre/gunta extents, civil and
// criminal case citations.
var rulePatterns = map[string][]pattern{
	FieldSurvey: {
		{regexp.MustCompile(`(?i)Survey\s*(?:No|Number)\.?\s*[:\-]?\s*(\d{1,4}(?:[/\-]\d{1,3})?[A-Za-z]?)`)},
		{regexp.MustCompile(`(?i)(?:Sy\.?\s*No\.?|S\.?\s*No\.?)\s*[:\-]?\s*(\d{1,4}(?:[/\-]\d{1,3})?[A-Za-z]?)`)},
		{regexp.MustCompile(`\b(\d{1,4}[/\-]\d{1,3}[A-Za-z]?)\b`)},
	},
	FieldHissa: {
		{regexp.MustCompile(`(?i)Hissa\s*(?:No|Number)?\.?\s*[:\-]?\s*(\d{1,3}[A-Za-z]?)`)},
		{regexp.MustCompile(`(?i)Khata\s*(?:No|Number)\.?\s*[:\-]?\s*(\d{1,6})`)},
	},
	FieldOwner: {
		{regexp.MustCompile(`(?i:Owner(?:\s*Name)?)\s*[:\-]\s*([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+){0,3})`)},
		{regexp.MustCompile(`(?i:Holder|Pattadar|Cultivator)\s*[:\-]\s*([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+){0,3})`)},
		{regexp.MustCompile(`(?i:Name)\s*[:\-]\s*([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+){0,3})`)},
	},
	FieldVillage: {
		{regexp.MustCompile(`(?i:Village)\s*[:\-]\s*([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?)`)},
		{regexp.MustCompile(`(?i:Gramam?)\s*[:\-]\s*([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?)`)},
	},
	FieldTaluk: {
		{regexp.MustCompile(`(?i:Taluka?)\s*[:\-]\s*([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?)`)},
	},
	FieldDistrict: {
		{regexp.MustCompile(`(?i:District)\s*[:\-]\s*([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?)`)},
	},
	FieldLoanAmount: {
		{regexp.MustCompile(`(?:₹|Rs\.?)\s*((?:\d{1,3}(?:,\d{2,3})+|\d+)(?:\.\d{1,2})?)`)},
		{regexp.MustCompile(`(?i)(?:Loan|Mortgage|Amount)\s*(?:of)?\s*[:\-]?\s*(?:₹|Rs\.?)?\s*((?:\d{1,3}(?:,\d{2,3})+|\d{4,}))`)},
	},
	FieldBank: {
		{regexp.MustCompile(`(?i)\b(State\s+Bank\s+of\s+Mysore|S\.?B\.?M\.?)\b`)},
		{regexp.MustCompile(`(?i)\b(State\s+Bank\s+of\s+India|SBI)\b`)},
		{regexp.MustCompile(`(?i)\b(HDFC\s+Bank|HDFC|ICICI\s+Bank|ICICI|Axis\s+Bank|Canara\s+Bank|Punjab\s+National\s+Bank|PNB|Bank\s+of\s+Baroda|BOB|Union\s+Bank)\b`)},
		{regexp.MustCompile(`\b([A-Z][a-z]+\s+Bank(?:\s+of\s+[A-Z][a-z]+)?)\b`)},
	},
	FieldCase: {
		{regexp.MustCompile(`(?i)(?:Civil\s+Suit|C\.S\.|CS)\s*No\.?\s*[:\-]?\s*(\d+[/\-]?\d*)`)},
		{regexp.MustCompile(`(?i)(?:Criminal\s+Case|Cr\.C\.|CC)\s*No\.?\s*[:\-]?\s*(\d+[/\-]?\d*)`)},
		{regexp.MustCompile(`(?i)Case\s*(?:No|Number)?\.?\s*[:\-]\s*(\d+[/\-]?\d*)`)},
		{regexp.MustCompile(`(?i)\b(?:O\.?S\.?)\s*No\.?\s*[:\-]?\s*(\d+[/\-]?\d*)`)},
	},
	FieldDate: {
		{regexp.MustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})\b`)},
		{regexp.MustCompile(`\b(\d{4}[/\-]\d{1,2}[/\-]\d{1,2})\b`)},
	},
	FieldMutation: {
		{regexp.MustCompile(`(?i)(?:MR|Mutation)\s*(?:No|Number)?\.?\s*[:\-]?\s*(\d+[/\-]?\d*)`)},
	},
	FieldValidFrom: {
		{regexp.MustCompile(`(?i)Valid(?:ity)?\s*From\s*[:\-]?\s*(\d{1,2}[/\-]\d{1,2}[/\-]\d{4}|\d{4}[/\-]\d{1,2}[/\-]\d{1,2})`)},
	},
	FieldValidTo: {
		{regexp.MustCompile(`(?i)Valid(?:ity)?\s*(?:To|Till|Upto)\s*[:\-]?\s*(\d{1,2}[/\-]\d{1,2}[/\-]\d{4}|\d{4}[/\-]\d{1,2}[/\-]\d{1,2})`)},
	},
	FieldSignedDate: {
		{regexp.MustCompile(`(?i)Digitally\s+Signed\s*(?:on|Date)?\s*[:\-]?\s*(\d{1,2}[/\-]\d{1,2}[/\-]\d{4}|\d{4}[/\-]\d{1,2}[/\-]\d{1,2})`)},
	},
}

// bankAliases maps raw bank mentions onto canonical names. SBM merged into
// SBI in 2017 but still appears on older records.
var bankAliases = []struct {
	match     *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)state\s+bank\s+of\s+mysore|^s\.?b\.?m\.?$`), "State Bank of Mysore (now SBI)"},
	{regexp.MustCompile(`(?i)state\s+bank\s+of\s+india|^sbi$`), "State Bank of India"},
	{regexp.MustCompile(`(?i)^hdfc(\s+bank)?$`), "HDFC Bank"},
	{regexp.MustCompile(`(?i)^icici(\s+bank)?$`), "ICICI Bank"},
	{regexp.MustCompile(`(?i)^axis(\s+bank)?$`), "Axis Bank"},
	{regexp.MustCompile(`(?i)bank\s+of\s+baroda|^bob$`), "Bank of Baroda"},
	{regexp.MustCompile(`(?i)punjab\s+national\s+bank|^pnb$`), "Punjab National Bank"},
	{regexp.MustCompile(`(?i)^canara(\s+bank)?$`), "Canara Bank"},
	{regexp.MustCompile(`(?i)^union(\s+bank)?$`), "Union Bank"},
}

// CanonicalBank returns the canonical name for a raw bank mention. Unknown
// banks pass through trimmed.
func CanonicalBank(raw string) string {
	for _, alias := range bankAliases {
		if alias.match.MatchString(raw) {
			return alias.canonical
		}
	}
	return raw
}
