package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptrust/engine/pkg/audit"
	"github.com/proptrust/engine/pkg/classify"
	"github.com/proptrust/engine/pkg/contracts"
	"github.com/proptrust/engine/pkg/crossdoc"
	"github.com/proptrust/engine/pkg/extract"
	"github.com/proptrust/engine/pkg/ledger"
	"github.com/proptrust/engine/pkg/observability"
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

const docWithLoan = docClean + `
Loan of Rs. 5,00,000 from State Bank of India Hebbal branch`

type testEnv struct {
	engine *Engine
	store  *store.Store
	ledger ledger.Ledger
}

type envOption func(*testEnv)

func withLedger(l ledger.Ledger) envOption {
	return func(env *testEnv) { env.ledger = l }
}

func newTestEngine(t *testing.T, opts ...envOption) *testEnv {
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

	env := &testEnv{store: st, ledger: sqlLedger}
	for _, opt := range opts {
		opt(env)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	seq := 0
	env.engine = New(
		ocr.NewPlainText(),
		translate.NewService(nil, nil),
		extract.New(),
		classify.NewRuleClassifier(),
		risk.New(risk.WithClock(fixed)),
		env.ledger,
		st,
		audit.NewStoreLogger(st, log, audit.WithClock(fixed)),
		log,
		WithClock(fixed),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%04d", seq) }),
	)
	return env
}

func verifyReq(doc string, anchor bool) VerifyRequest {
	return VerifyRequest{
		Document:     []byte(doc),
		Format:       contracts.FormatImage,
		DeclaredType: contracts.DocTypeRTC,
		PropertyID:   "prop-1",
		Anchor:       anchor,
	}
}

func TestVerify_HappyPathLowRisk(t *testing.T) {
	env := newTestEngine(t)
	res, err := env.engine.Verify(context.Background(), verifyReq(docClean, false))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Record.RiskScore)
	assert.Equal(t, contracts.RiskLow, res.Record.RiskLevel)
	assert.Empty(t, res.Assessment.Factors)
	assert.Equal(t, contracts.LabelClearTitle, res.Record.ClassificationLabel)
	assert.NotEqual(t, [32]byte{}, res.Record.Fingerprint)
	assert.False(t, res.Record.Anchored())

	assert.Equal(t, "RAVI KUMAR", res.Detail.Owner)
	assert.Equal(t, "45/2A", res.Detail.SurveyNumber)
	assert.Equal(t, "HEBBAL", res.Detail.Village)
	assert.Equal(t, 2, res.Detail.ExtentAcres)
	assert.Equal(t, 10, res.Detail.ExtentGuntas)
}

func TestVerify_FingerprintReproducible(t *testing.T) {
	first, err := newTestEngine(t).engine.Verify(context.Background(), verifyReq(docClean, false))
	require.NoError(t, err)

	// A fresh engine in a fresh store must land on the same bytes.
	second, err := newTestEngine(t).engine.Verify(context.Background(), verifyReq(docClean, false))
	require.NoError(t, err)
	assert.Equal(t, first.Record.Fingerprint, second.Record.Fingerprint)
}

func TestVerify_LoanBoundaryLow(t *testing.T) {
	env := newTestEngine(t)
	res, err := env.engine.Verify(context.Background(), verifyReq(docWithLoan, false))
	require.NoError(t, err)

	assert.Equal(t, 30, res.Record.RiskScore)
	assert.Equal(t, contracts.RiskLow, res.Record.RiskLevel)
	require.Len(t, res.Detail.Loans, 1)
	assert.Equal(t, int64(50000000), res.Detail.Loans[0].Amount)
	assert.Equal(t, contracts.LabelLoanDetected, res.Record.ClassificationLabel)

	var codes []string
	for _, f := range res.Assessment.Factors {
		codes = append(codes, f.Code)
	}
	assert.Contains(t, codes, risk.CodeLoanPresent)
}

func TestVerify_AnchorsToLedger(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	res, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)
	assert.True(t, res.Record.Anchored())
	assert.Equal(t, int64(1_000_000), res.Record.AnchorBlockHeight)

	entry, err := env.ledger.Get(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, res.Record.Fingerprint, entry.Fingerprint)

	// The persisted row carries the anchor too.
	rec, _, err := env.store.LatestVerification(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, res.Record.AnchorReference, rec.AnchorReference)
}

func TestVerify_SecondAnchorPushesHistory(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	first, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)
	_, err = env.engine.Verify(ctx, verifyReq(docWithLoan, true))
	require.NoError(t, err)

	hist, err := env.ledger.History(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, first.Record.Fingerprint, hist[0])
}

type downLedger struct{}

func (downLedger) Put(context.Context, string, [32]byte, int) (ledger.Receipt, error) {
	return ledger.Receipt{}, ledger.ErrUnavailable
}
func (downLedger) Get(context.Context, string) (ledger.Entry, error) {
	return ledger.Entry{}, ledger.ErrUnavailable
}
func (downLedger) History(context.Context, string) ([][32]byte, error) {
	return nil, ledger.ErrUnavailable
}
func (downLedger) Verify(context.Context, string, [32]byte) (bool, error) {
	return false, ledger.ErrUnavailable
}
func (downLedger) Status(context.Context) (ledger.Status, error) {
	return ledger.Status{Backend: "down"}, ledger.ErrUnavailable
}
func (downLedger) Close() error { return nil }

func TestVerify_LedgerDownIsNonFatal(t *testing.T) {
	env := newTestEngine(t, withLedger(downLedger{}))
	ctx := context.Background()

	res, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)
	assert.False(t, res.Record.Anchored())
	assert.Contains(t, res.Warnings, "ledger_anchoring_failed")

	// The relational record is still queryable.
	rec, _, err := env.store.LatestVerification(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, rec.AnchorReference)

	// And the failure is on the audit trail.
	entries, err := env.store.RecentAudit(ctx, 10)
	require.NoError(t, err)
	var ops []contracts.AuditOperation
	for _, e := range entries {
		ops = append(ops, e.Operation)
	}
	assert.Contains(t, ops, contracts.OpLedgerFailure)
}

func TestVerify_EmptyDocumentRejected(t *testing.T) {
	env := newTestEngine(t)
	_, err := env.engine.Verify(context.Background(), VerifyRequest{Format: contracts.FormatImage})
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))
}

func TestVerify_EmptyTextStillProducesRecord(t *testing.T) {
	env := newTestEngine(t)
	res, err := env.engine.Verify(context.Background(), verifyReq(" ", false))
	require.NoError(t, err)

	var codes []string
	for _, f := range res.Assessment.Factors {
		codes = append(codes, f.Code)
	}
	assert.Contains(t, codes, risk.CodeDataQualityLow)
	assert.Contains(t, codes, risk.CodeOwnerMissing)
	assert.Contains(t, codes, risk.CodeSurveyMissing)
}

type kannadaExtractor struct{}

func (kannadaExtractor) Extract(_ context.Context, doc []byte, _ contracts.FormatHint) (contracts.ExtractionResult, error) {
	return contracts.ExtractionResult{
		Pages:          []string{string(doc)},
		PagesProcessed: 1,
		CharsOriginal:  len(doc),
		LanguageHint:   "kn",
	}, nil
}
func (kannadaExtractor) Close() error { return nil }

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string, string) (string, error) {
	return "", errors.New("provider offline")
}
func (failingTranslator) Close() error { return nil }

func TestVerify_TranslatorFailureDegrades(t *testing.T) {
	env := newTestEngine(t)
	env.engine.extractor = kannadaExtractor{}
	env.engine.translator = translate.NewService(failingTranslator{}, nil)

	res, err := env.engine.Verify(context.Background(), verifyReq(docClean, false))
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, translate.WarnUnavailable)
	assert.Equal(t, "RAVI KUMAR", res.Detail.Owner)
}

func TestCheckTamper_VerifiedOnSameBytes(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	res, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)

	tc, err := env.engine.CheckTamper(ctx, "prop-1", []byte(docClean), contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, contracts.TamperVerified, tc.Status)
	assert.True(t, tc.HashMatched)
	assert.Equal(t, 0, tc.RiskScoreDelta)
	assert.Equal(t, res.Record.Fingerprint, tc.AnchoredFingerprint)
	assert.Equal(t, res.Record.Fingerprint, tc.RecomputedFingerprint)
}

func TestCheckTamper_DetectsOwnerChange(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)

	tampered := []byte(replaceOnce(docClean, "Ravi Kumar", "Ravi Kumax"))

	tc, err := env.engine.CheckTamper(ctx, "prop-1", tampered, contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, contracts.TamperTampered, tc.Status)
	assert.False(t, tc.HashMatched)
	assert.Contains(t, tc.Warnings, "FIELD_CHANGED:owner")
}

func TestCheckTamper_RiskOnlyChangeStillTampered(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)

	// Same entities, new loan line: score and loans both change, so this is
	// a genuine tamper, and the loan field shows up in the diff.
	tc, err := env.engine.CheckTamper(ctx, "prop-1", []byte(docWithLoan), contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, contracts.TamperTampered, tc.Status)
	assert.Equal(t, 30, tc.RiskScoreDelta)
	assert.Contains(t, tc.Warnings, "FIELD_CHANGED:loans")
	assert.Contains(t, tc.Warnings, "FACTOR_ADDED:"+risk.CodeLoanPresent)
}

func TestCheckTamper_FactorRemovedInDiff(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Verify(ctx, verifyReq(docWithLoan, true))
	require.NoError(t, err)

	tc, err := env.engine.CheckTamper(ctx, "prop-1", []byte(docClean), contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, contracts.TamperTampered, tc.Status)
	assert.Contains(t, tc.Warnings, "FACTOR_REMOVED:"+risk.CodeLoanPresent)
	assert.NotContains(t, tc.Warnings, "FACTOR_ADDED:"+risk.CodeLoanPresent)
}

func TestCheckTamper_DiffUsesAnchoredRecordNotLatest(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	// Anchor the clean document, then persist a newer un-anchored
	// verification with a loan. The diff must still run against the
	// anchored record.
	_, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)
	_, err = env.engine.Verify(ctx, verifyReq(docWithLoan, false))
	require.NoError(t, err)

	tampered := []byte(replaceOnce(docClean, "Ravi Kumar", "Ravi Kumax"))
	tc, err := env.engine.CheckTamper(ctx, "prop-1", tampered, contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, contracts.TamperTampered, tc.Status)
	assert.Contains(t, tc.Warnings, "FIELD_CHANGED:owner")
	assert.NotContains(t, tc.Warnings, "FIELD_CHANGED:loans")
	assert.NotContains(t, tc.Warnings, "FACTOR_REMOVED:"+risk.CodeLoanPresent)
}

func TestCheckTamper_NotFoundPersisted(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	tc, err := env.engine.CheckTamper(ctx, "ghost", []byte(docClean), contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, contracts.TamperNotFound, tc.Status)

	checks, err := env.store.TamperChecks(ctx, "ghost", 10)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, contracts.TamperNotFound, checks[0].Status)
}

func TestCheckTamper_NeverWritesLedger(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)
	_, err = env.engine.CheckTamper(ctx, "prop-1", []byte(docWithLoan), contracts.FormatImage)
	require.NoError(t, err)

	hist, err := env.ledger.History(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestCheckTamper_LedgerDown(t *testing.T) {
	env := newTestEngine(t, withLedger(downLedger{}))
	tc, err := env.engine.CheckTamper(context.Background(), "prop-1", []byte(docClean), contracts.FormatImage)
	assert.True(t, contracts.IsKind(err, contracts.KindExternalUnavailable))
	assert.Equal(t, contracts.TamperError, tc.Status)
}

func TestDelete_Cascades(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)
	require.NoError(t, env.engine.Delete(ctx, "prop-1"))

	_, _, err = env.engine.Latest(ctx, "prop-1")
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))

	// Ledger is unchanged by deletion.
	_, err = env.ledger.Get(ctx, "prop-1")
	assert.NoError(t, err)

	err = env.engine.Delete(ctx, "prop-1")
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))
}

func TestStatisticsAndStatus(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)

	stats, err := env.engine.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Properties)
	assert.Equal(t, int64(1), stats.Anchored)

	status, err := env.engine.LedgerStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Available)
	assert.Equal(t, int64(1_000_000), status.BlockHeight)
}

func TestCrossCheck_ConsistentPair(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	req := verifyReq(docClean, false)
	req.PropertyID = "prop-rtc"
	_, err := env.engine.Verify(ctx, req)
	require.NoError(t, err)

	req = verifyReq(docClean, false)
	req.PropertyID = "prop-mr"
	req.DeclaredType = contracts.DocTypeMR
	_, err = env.engine.Verify(ctx, req)
	require.NoError(t, err)

	rep, err := env.engine.CrossCheck(ctx, "prop-rtc", "prop-mr")
	require.NoError(t, err)
	assert.Equal(t, crossdoc.StatusVerified, rep.Status)
	assert.Equal(t, 100, rep.MatchScore)

	entries, err := env.store.RecentAudit(ctx, 10)
	require.NoError(t, err)
	var ops []contracts.AuditOperation
	for _, e := range entries {
		ops = append(ops, e.Operation)
	}
	assert.Contains(t, ops, contracts.OpCrossCheck)
}

func TestCrossCheck_UnknownProperty(t *testing.T) {
	env := newTestEngine(t)
	_, err := env.engine.CrossCheck(context.Background(), "ghost", "ghost")
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))

	_, err = env.engine.CrossCheck(context.Background(), "", "prop-1")
	assert.True(t, contracts.IsKind(err, contracts.KindBadInput))
}

func TestTelemetryTrackedOperations(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider, err := observability.New(ctx, &observability.Config{}, log)
	require.NoError(t, err)
	env.engine.telemetry = provider

	res, err := env.engine.Verify(ctx, verifyReq(docClean, true))
	require.NoError(t, err)
	assert.Equal(t, contracts.RiskLow, res.Record.RiskLevel)

	tc, err := env.engine.CheckTamper(ctx, "prop-1", []byte(docClean), contracts.FormatImage)
	require.NoError(t, err)
	assert.Equal(t, contracts.TamperVerified, tc.Status)
}

func replaceOnce(s, from, to string) string {
	for i := 0; i+len(from) <= len(s); i++ {
		if s[i:i+len(from)] == from {
			return s[:i] + to + s[i+len(from):]
		}
	}
	return s
}
