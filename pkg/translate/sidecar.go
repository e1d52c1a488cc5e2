package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SidecarConfig configures the HTTP translation sidecar client.
type SidecarConfig struct {
	// Endpoint is the base URL of the translation sidecar.
	Endpoint string
	// Timeout bounds one translation call end to end.
	Timeout time.Duration
}

// Sidecar calls an external translation service over HTTP. The sidecar owns
// the model (IndicTrans for Kannada in the reference deployment); this client
// only moves text. Errors surface as-is and the Service degrades them to
// pass-through.
type Sidecar struct {
	cfg    SidecarConfig
	client *http.Client
}

// NewSidecar builds a sidecar client.
func NewSidecar(cfg SidecarConfig) *Sidecar {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Sidecar{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type sidecarRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type sidecarResponse struct {
	Text string `json:"text"`
}

func (s *Sidecar) Translate(ctx context.Context, text, sourceLang string) (string, error) {
	body, err := json.Marshal(sidecarRequest{
		Text:       text,
		SourceLang: sourceLang,
		TargetLang: "en",
	})
	if err != nil {
		return "", fmt.Errorf("encode translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation provider unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation provider returned status %d", resp.StatusCode)
	}

	var out sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode translation response: %w", err)
	}
	return out.Text, nil
}

func (s *Sidecar) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
