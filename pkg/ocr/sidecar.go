package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/proptrust/engine/pkg/contracts"
)

// SidecarConfig configures the HTTP OCR sidecar client.
type SidecarConfig struct {
	// Endpoint is the base URL of the extraction sidecar.
	Endpoint string
	// Timeout bounds one extraction call end to end.
	Timeout time.Duration
}

// Sidecar calls an external OCR service over HTTP. The sidecar owns the
// actual OCR engine (Tesseract with English+Kannada traineddata in the
// reference deployment); this client only moves bytes and maps failures
// onto the engine taxonomy.
type Sidecar struct {
	cfg    SidecarConfig
	client *http.Client
}

// NewSidecar builds a sidecar client.
func NewSidecar(cfg SidecarConfig) *Sidecar {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Sidecar{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type sidecarRequest struct {
	Document string `json:"document"` // base64
	Format   string `json:"format"`
}

type sidecarResponse struct {
	Pages          []string `json:"pages"`
	PagesProcessed int      `json:"pages_processed"`
	CharsOriginal  int      `json:"chars_original"`
	LanguageHint   string   `json:"language_hint"`
}

func (s *Sidecar) Extract(ctx context.Context, doc []byte, format contracts.FormatHint) (contracts.ExtractionResult, error) {
	if err := ValidateFormat(format); err != nil {
		return contracts.ExtractionResult{}, err
	}

	body, err := json.Marshal(sidecarRequest{
		Document: base64.StdEncoding.EncodeToString(doc),
		Format:   string(format),
	})
	if err != nil {
		return contracts.ExtractionResult{}, contracts.NewError(
			contracts.KindInternal, Stage, "encode sidecar request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+"/extract", bytes.NewReader(body))
	if err != nil {
		return contracts.ExtractionResult{}, contracts.NewError(
			contracts.KindInternal, Stage, "build sidecar request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return contracts.ExtractionResult{}, contracts.NewError(
				contracts.KindDeadlineExceeded, Stage, "extraction deadline exceeded", err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return contracts.ExtractionResult{}, contracts.NewError(
				contracts.KindCancelled, Stage, "extraction cancelled", err)
		}
		return contracts.ExtractionResult{}, contracts.NewError(
			contracts.KindExternalUnavailable, Stage, "ocr provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return contracts.ExtractionResult{}, contracts.NewError(
			contracts.KindBadInput, Stage, "ocr provider rejected the document", nil)
	case resp.StatusCode != http.StatusOK:
		return contracts.ExtractionResult{}, contracts.NewError(
			contracts.KindExternalUnavailable, Stage,
			fmt.Sprintf("ocr provider returned status %d", resp.StatusCode), nil)
	}

	var out sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return contracts.ExtractionResult{}, contracts.NewError(
			contracts.KindExternalUnavailable, Stage, "decode sidecar response", err)
	}

	return contracts.ExtractionResult{
		Pages:          out.Pages,
		PagesProcessed: out.PagesProcessed,
		CharsOriginal:  out.CharsOriginal,
		LanguageHint:   out.LanguageHint,
	}, nil
}

func (s *Sidecar) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
