package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// MaxUploadBytes bounds multipart uploads.
const MaxUploadBytes = 32 << 20

// Server is the HTTP edge over the verification engine.
type Server struct {
	engine  VerificationEngine
	log     *slog.Logger
	limiter *GlobalRateLimiter
}

// NewServer builds the edge. limiter may be nil to disable rate limiting.
func NewServer(e VerificationEngine, log *slog.Logger, limiter *GlobalRateLimiter) *Server {
	return &Server{engine: e, log: log, limiter: limiter}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/verify/upload", s.handleVerifyUpload)
	mux.HandleFunc("/tamper/check", s.handleTamperCheck)
	mux.HandleFunc("/verification/", s.handleVerification)
	mux.HandleFunc("/cross/check", s.handleCrossCheck)
	mux.HandleFunc("/ledger/status", s.handleLedgerStatus)
	mux.HandleFunc("/statistics", s.handleStatistics)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return RequestLogger(s.log, h)
}

// propertyIDFromPath extracts the trailing path element of
// /verification/{property_id}.
func propertyIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/verification/")
	if rest == path || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
