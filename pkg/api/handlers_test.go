package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptrust/engine/pkg/api"
	"github.com/proptrust/engine/pkg/audit"
	"github.com/proptrust/engine/pkg/classify"
	"github.com/proptrust/engine/pkg/engine"
	"github.com/proptrust/engine/pkg/extract"
	"github.com/proptrust/engine/pkg/ledger"
	"github.com/proptrust/engine/pkg/ocr"
	"github.com/proptrust/engine/pkg/risk"
	"github.com/proptrust/engine/pkg/store"
	"github.com/proptrust/engine/pkg/translate"

	_ "modernc.org/sqlite"
)

const docClean = `Survey No: 45/2A Owner: Ravi Kumar
Village: Hebbal Taluk: Bangalore North District: Bangalore
Extent: 2 Acres 10 Guntas
Valid From: 01/04/2020 Valid To: 31/03/2035
Khata No: 118 Hobli: Kasaba
Record of Rights Tenancy and Crops issued by the Revenue Department
Digitally Signed on 01/04/2020`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(db)
	require.NoError(t, err)

	fixed := func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	sqlLedger := ledger.NewSQLLedger(db, ledger.WithClock(fixed))
	require.NoError(t, sqlLedger.Init(context.Background()))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	seq := 0
	eng := engine.New(
		ocr.NewPlainText(),
		translate.NewService(nil, nil),
		extract.New(),
		classify.NewRuleClassifier(),
		risk.New(risk.WithClock(fixed)),
		sqlLedger,
		st,
		audit.NewStoreLogger(st, log, audit.WithClock(fixed)),
		log,
		engine.WithClock(fixed),
		engine.WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%04d", seq) }),
	)

	srv := httptest.NewServer(api.NewServer(eng, log, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// multipartUpload builds a form with the document under "file" plus extra
// string fields.
func multipartUpload(t *testing.T, filename, doc string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(doc))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postUpload(t *testing.T, url, filename, doc string, fields map[string]string) *http.Response {
	t.Helper()
	body, contentType := multipartUpload(t, filename, doc, fields)
	resp, err := http.Post(url, contentType, body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestVerifyUpload(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/verify/upload", "rtc.png", docClean, map[string]string{
		"document_type":   "RTC",
		"property_id":     "prop-1",
		"store_on_ledger": "true",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		PropertyID     string `json:"property_id"`
		VerificationID string `json:"verification_id"`
		RiskScore      int    `json:"risk_score"`
		RiskLevel      string `json:"risk_level"`
		Classification struct {
			Label string `json:"label"`
		} `json:"classification"`
		Entities struct {
			Owner        string `json:"owner"`
			SurveyNumber string `json:"survey_number"`
		} `json:"entities"`
		Ledger struct {
			Stored         bool   `json:"stored"`
			FingerprintHex string `json:"fingerprint_hex"`
			BlockHeight    int64  `json:"block_height"`
		} `json:"ledger"`
	}
	decodeJSON(t, resp, &body)

	assert.Equal(t, "prop-1", body.PropertyID)
	assert.NotEmpty(t, body.VerificationID)
	assert.Equal(t, 0, body.RiskScore)
	assert.Equal(t, "LOW", body.RiskLevel)
	assert.Equal(t, "CLEAR_TITLE", body.Classification.Label)
	assert.Equal(t, "RAVI KUMAR", body.Entities.Owner)
	assert.Equal(t, "45/2A", body.Entities.SurveyNumber)
	assert.True(t, body.Ledger.Stored)
	assert.Len(t, body.Ledger.FingerprintHex, 64)
	assert.Equal(t, int64(1_000_000), body.Ledger.BlockHeight)
}

func TestVerifyUpload_MissingFile(t *testing.T) {
	srv := newTestServer(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("property_id", "prop-1"))
	require.NoError(t, w.Close())

	resp, err := http.Post(srv.URL+"/verify/upload", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestVerifyUpload_EmptyDocument(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/verify/upload", "rtc.png", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyUpload_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/verify/upload")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTamperCheck_Verified(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/verify/upload", "rtc.png", docClean, map[string]string{
		"property_id":     "prop-1",
		"store_on_ledger": "true",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postUpload(t, srv.URL+"/tamper/check?property_id=prop-1", "rtc.png", docClean, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status                   string `json:"status"`
		HashMatched              bool   `json:"hash_matched"`
		AnchoredFingerprintHex   string `json:"anchored_fingerprint_hex"`
		RecomputedFingerprintHex string `json:"recomputed_fingerprint_hex"`
		RiskScoreDelta           int    `json:"risk_score_delta"`
	}
	decodeJSON(t, resp, &body)

	assert.Equal(t, "VERIFIED", body.Status)
	assert.True(t, body.HashMatched)
	assert.Equal(t, body.AnchoredFingerprintHex, body.RecomputedFingerprintHex)
	assert.Equal(t, 0, body.RiskScoreDelta)
}

func TestTamperCheck_NotAnchored(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/tamper/check?property_id=prop-x", "rtc.png", docClean, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "NOT_FOUND", body.Status)
}

func TestTamperCheck_MissingPropertyID(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/tamper/check", "rtc.png", docClean, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerificationLatest(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/verify/upload", "rtc.png", docClean, map[string]string{
		"property_id": "prop-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/verification/prop-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Record struct {
			PropertyID string `json:"property_id"`
			RiskLevel  string `json:"risk_level"`
		} `json:"record"`
		Detail struct {
			Owner string `json:"owner"`
		} `json:"detail"`
		FingerprintHex string `json:"fingerprint_hex"`
	}
	decodeJSON(t, resp, &body)

	assert.Equal(t, "prop-1", body.Record.PropertyID)
	assert.Equal(t, "LOW", body.Record.RiskLevel)
	assert.Equal(t, "RAVI KUMAR", body.Detail.Owner)
	assert.Len(t, body.FingerprintHex, 64)
}

func TestVerificationLatest_Unknown(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/verification/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerificationDelete(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/verify/upload", "rtc.png", docClean, map[string]string{
		"property_id": "prop-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/verification/prop-1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Gone now.
	resp2, err := http.Get(srv.URL + "/verification/prop-1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	// Second delete is a 404 too.
	resp3, err := http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestVerification_BadPath(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/verification/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCrossCheck(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/verify/upload", "rtc.png", docClean, map[string]string{
		"document_type": "RTC",
		"property_id":   "prop-rtc",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postUpload(t, srv.URL+"/verify/upload", "mr.png", docClean, map[string]string{
		"document_type": "MR",
		"property_id":   "prop-mr",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/cross/check?rtc=prop-rtc&mr=prop-mr")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status       string `json:"status"`
		MatchScore   int    `json:"match_score"`
		TotalChecks  int    `json:"total_checks"`
		PassedChecks int    `json:"passed_checks"`
		Checks       []struct {
			Field string `json:"field"`
			Match bool   `json:"match"`
		} `json:"checks"`
	}
	decodeJSON(t, resp, &body)

	assert.Equal(t, "VERIFIED", body.Status)
	assert.Equal(t, 100, body.MatchScore)
	assert.Equal(t, 5, body.TotalChecks)
	assert.Equal(t, 5, body.PassedChecks)
	assert.Len(t, body.Checks, 5)
}

func TestCrossCheck_UnknownProperty(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/cross/check?rtc=ghost&mr=ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCrossCheck_MissingParams(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/cross/check?rtc=prop-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLedgerStatus(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ledger/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Backend   string `json:"backend"`
		Available bool   `json:"available"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "local", body.Backend)
	assert.True(t, body.Available)
}

func TestStatistics(t *testing.T) {
	srv := newTestServer(t)
	resp := postUpload(t, srv.URL+"/verify/upload", "rtc.png", docClean, map[string]string{
		"property_id": "prop-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/statistics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Properties    int64 `json:"properties"`
		Verifications int64 `json:"verifications"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, int64(1), body.Properties)
	assert.Equal(t, int64(1), body.Verifications)
}

func TestRateLimiter(t *testing.T) {
	limiter := api.NewGlobalRateLimiter(1, 2)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	// A different source address gets its own bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
