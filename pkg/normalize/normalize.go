// Package normalize implements the deterministic cleaning stage. Clean is a
// pure function: identical input bytes produce identical output bytes across
// runs and processes, which is what keeps fingerprints stable downstream.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxCleanedBytes bounds the cleaned output. Longer inputs are truncated at
// a rune boundary.
const MaxCleanedBytes = 1 << 20

// ConfusableTable is the published OCR confusable substitution table. It is
// applied only inside tokens that sit in a numeric context (see
// numericToken), never to prose.
var ConfusableTable = map[rune]rune{
	'O': '0',
	'o': '0',
	'l': '1',
	'I': '1',
	'|': '1',
	'S': '5',
	'B': '8',
}

// boilerplate matches repeated page-header/footer noise seen on scanned
// revenue-department printouts. The set is bounded and fixed.
var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)First\s+Previous\s+Next\s+Last`),
	regexp.MustCompile(`(?i)Print\s*Page[_\s]*No[.:\s]*\d+`),
	regexp.MustCompile(`(?i)Page\s+\d+\s+of\s+\d+`),
	regexp.MustCompile(`https?://\S+|www\.\S+`),
}

// numericToken decides whether a token is in numeric context: it must
// contain at least one digit and consist only of digits, confusable
// candidates and the separators land records use (/, -, ., *, comma).
var numericToken = regexp.MustCompile(`^[0-9OolI|SB][0-9OolI|SB/\-.,*]*$`)

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{2,}`)
)

// Clean applies the normalization steps in fixed order: NFC, boilerplate
// removal, control-character strip (newline kept), confusable substitution
// inside numeric tokens, whitespace collapse, truncation.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := norm.NFC.String(raw)

	for _, re := range boilerplate {
		text = re.ReplaceAllString(text, " ")
	}

	text = stripControl(text)
	text = substituteConfusables(text)

	text = spaceRuns.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = newlineRuns.ReplaceAllString(text, "\n")
	text = strings.TrimSpace(text)

	return truncate(text, MaxCleanedBytes)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}

// substituteConfusables rewrites tokens in numeric context using the
// published table. A token qualifies only if it contains a real digit:
// "Ool" is left alone, "1O5/2A" becomes "105/2A". A single trailing letter
// (the hissa suffix in survey numbers like 45/2A) is kept verbatim.
func substituteConfusables(s string) string {
	fields := strings.Split(s, " ")
	for i, tok := range fields {
		if !strings.ContainsAny(tok, "0123456789") {
			continue
		}
		body, suffix := tok, ""
		if n := len(tok); n > 1 && isASCIILetter(tok[n-1]) {
			body, suffix = tok[:n-1], tok[n-1:]
		}
		if !numericToken.MatchString(body) {
			continue
		}
		fields[i] = strings.Map(func(r rune) rune {
			if sub, ok := ConfusableTable[r]; ok {
				return sub
			}
			return r
		}, body) + suffix
	}
	return strings.Join(fields, " ")
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
