// Package ocr wraps the external text-extraction capability behind a narrow
// interface. The engine never talks to an OCR provider directly; it sees
// page strings plus per-document statistics.
package ocr

import (
	"context"
	"unicode/utf8"

	"github.com/proptrust/engine/pkg/contracts"
)

// Stage name used in typed errors.
const Stage = "extraction"

// Extractor is the capability consumed by the pipeline. Implementations
// must be deterministic for identical inputs, or the pipeline treats their
// output as noisy and relies on normalization for fingerprint stability.
//
// Empty output is success with empty text, not an error.
type Extractor interface {
	Extract(ctx context.Context, doc []byte, format contracts.FormatHint) (contracts.ExtractionResult, error)
	Close() error
}

// ValidateFormat rejects format hints outside the supported set.
func ValidateFormat(format contracts.FormatHint) error {
	switch format {
	case contracts.FormatImage, contracts.FormatPDF:
		return nil
	default:
		return contracts.NewError(contracts.KindBadInput, Stage,
			"unsupported format hint: "+string(format), nil)
	}
}

// PlainText is a deterministic extractor that reads the document bytes as
// UTF-8 text, one page per form-feed-separated chunk. It backs offline mode
// and the test suite, where fingerprint determinism is exercised end to end.
type PlainText struct{}

// NewPlainText returns the offline extractor.
func NewPlainText() *PlainText { return &PlainText{} }

func (p *PlainText) Extract(_ context.Context, doc []byte, format contracts.FormatHint) (contracts.ExtractionResult, error) {
	if err := ValidateFormat(format); err != nil {
		return contracts.ExtractionResult{}, err
	}
	if !utf8.Valid(doc) {
		return contracts.ExtractionResult{}, contracts.NewError(
			contracts.KindBadInput, Stage, "document bytes are not readable text", nil)
	}
	text := string(doc)
	var pages []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\f' {
			pages = append(pages, text[start:i])
			start = i + 1
		}
	}
	pages = append(pages, text[start:])
	return contracts.ExtractionResult{
		Pages:          pages,
		PagesProcessed: len(pages),
		CharsOriginal:  len(text),
		LanguageHint:   "en",
	}, nil
}

func (p *PlainText) Close() error { return nil }
