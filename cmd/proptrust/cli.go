package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/proptrust/engine/pkg/canonical"
	"github.com/proptrust/engine/pkg/contracts"
	"github.com/proptrust/engine/pkg/engine"
)

// offlineEngine builds an engine for one-shot commands: environment
// configuration, but never a remote OCR or translation provider.
func offlineEngine(ctx context.Context, dbPath string) (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.DatabaseURL = dbPath
	}
	cfg.OCREndpoint = ""
	cfg.TranslatorEndpoint = ""
	return buildEngine(ctx, cfg, newLogger("ERROR"), nil)
}

func formatFromPath(path string) contracts.FormatHint {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return contracts.FormatPDF
	}
	return contracts.FormatImage
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "document to verify")
	propertyID := fs.String("id", "", "property identifier")
	docType := fs.String("type", "RTC", "declared document type (RTC, MR, EC, SALE_DEED)")
	anchor := fs.Bool("anchor", false, "anchor the fingerprint to the ledger")
	dbPath := fs.String("db", "", "database path (overrides ENGINE_DATABASE_URL)")
	asJSON := fs.Bool("json", false, "emit the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if *file == "" {
		_, _ = fmt.Fprintln(stderr, "verify: -file is required")
		return exitBadInput
	}

	doc, err := os.ReadFile(*file)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "verify:", err)
		return exitBadInput
	}

	ctx := context.Background()
	eng, cleanup, err := offlineEngine(ctx, *dbPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "verify:", err)
		return exitInternal
	}
	defer cleanup()

	res, err := eng.Verify(ctx, engine.VerifyRequest{
		Document:     doc,
		Format:       formatFromPath(*file),
		DeclaredType: contracts.ParseDocumentType(*docType),
		PropertyID:   *propertyID,
		Anchor:       *anchor,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "verify:", err)
		return exitCodeFor(err)
	}

	if *asJSON {
		return emitJSON(stdout, stderr, res)
	}

	_, _ = fmt.Fprintf(stdout, "property:       %s\n", res.Record.PropertyID)
	_, _ = fmt.Fprintf(stdout, "verification:   %s\n", res.Record.VerificationID)
	_, _ = fmt.Fprintf(stdout, "risk:           %d (%s)\n", res.Record.RiskScore, res.Record.RiskLevel)
	_, _ = fmt.Fprintf(stdout, "classification: %s\n", res.Record.ClassificationLabel)
	_, _ = fmt.Fprintf(stdout, "fingerprint:    %s\n", canonical.Hex(res.Record.Fingerprint))
	for _, f := range res.Assessment.Factors {
		_, _ = fmt.Fprintf(stdout, "factor:         %s (+%d) %s\n", f.Code, f.Weight, f.Description)
	}
	if res.Record.Anchored() {
		_, _ = fmt.Fprintf(stdout, "anchored:       %s (block %d)\n", res.Record.AnchorReference, res.Record.AnchorBlockHeight)
	}
	for _, w := range res.Warnings {
		_, _ = fmt.Fprintf(stdout, "warning:        %s\n", w)
	}
	return exitOK
}

func runTamperCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tamper", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "document to re-verify")
	propertyID := fs.String("id", "", "property identifier")
	dbPath := fs.String("db", "", "database path (overrides ENGINE_DATABASE_URL)")
	asJSON := fs.Bool("json", false, "emit the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if *file == "" || *propertyID == "" {
		_, _ = fmt.Fprintln(stderr, "tamper: -file and -id are required")
		return exitBadInput
	}

	doc, err := os.ReadFile(*file)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "tamper:", err)
		return exitBadInput
	}

	ctx := context.Background()
	eng, cleanup, err := offlineEngine(ctx, *dbPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "tamper:", err)
		return exitInternal
	}
	defer cleanup()

	tc, err := eng.CheckTamper(ctx, *propertyID, doc, formatFromPath(*file))
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "tamper:", err)
		return exitCodeFor(err)
	}

	if *asJSON {
		return emitJSON(stdout, stderr, tc)
	}

	_, _ = fmt.Fprintf(stdout, "status:      %s\n", tc.Status)
	_, _ = fmt.Fprintf(stdout, "matched:     %v\n", tc.HashMatched)
	if tc.Status == contracts.TamperVerified || tc.Status == contracts.TamperTampered {
		_, _ = fmt.Fprintf(stdout, "anchored:    %s\n", canonical.Hex(tc.AnchoredFingerprint))
		_, _ = fmt.Fprintf(stdout, "recomputed:  %s\n", canonical.Hex(tc.RecomputedFingerprint))
		_, _ = fmt.Fprintf(stdout, "risk delta:  %+d\n", tc.RiskScoreDelta)
	}
	for _, w := range tc.Warnings {
		_, _ = fmt.Fprintf(stdout, "warning:     %s\n", w)
	}
	if tc.Status == contracts.TamperTampered {
		return exitLedger
	}
	return exitOK
}

func runCrossCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cross", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rtcID := fs.String("rtc", "", "RTC property identifier")
	mrID := fs.String("mr", "", "mutation register property identifier")
	dbPath := fs.String("db", "", "database path (overrides ENGINE_DATABASE_URL)")
	asJSON := fs.Bool("json", false, "emit the full report as JSON")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if *rtcID == "" || *mrID == "" {
		_, _ = fmt.Fprintln(stderr, "cross: -rtc and -mr are required")
		return exitBadInput
	}

	ctx := context.Background()
	eng, cleanup, err := offlineEngine(ctx, *dbPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "cross:", err)
		return exitInternal
	}
	defer cleanup()

	rep, err := eng.CrossCheck(ctx, *rtcID, *mrID)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "cross:", err)
		return exitCodeFor(err)
	}

	if *asJSON {
		return emitJSON(stdout, stderr, rep)
	}

	_, _ = fmt.Fprintf(stdout, "status:  %s\n", rep.Status)
	_, _ = fmt.Fprintf(stdout, "score:   %d (%d/%d checks passed)\n", rep.MatchScore, rep.PassedChecks, rep.TotalChecks)
	for _, c := range rep.Checks {
		outcome := "MATCH"
		if !c.Match {
			outcome = "MISMATCH"
		}
		if c.Warning {
			outcome += " (advisory)"
		}
		_, _ = fmt.Fprintf(stdout, "check:   %-16s %-20s %s\n", c.Field, outcome, c.Message)
	}
	return exitOK
}

func runStatusCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "database path (overrides ENGINE_DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	ctx := context.Background()
	eng, cleanup, err := offlineEngine(ctx, *dbPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "status:", err)
		return exitInternal
	}
	defer cleanup()

	ledgerStatus, err := eng.LedgerStatus(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "status:", err)
		return exitCodeFor(err)
	}
	stats, err := eng.Statistics(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "status:", err)
		return exitCodeFor(err)
	}

	return emitJSON(stdout, stderr, map[string]any{
		"ledger":     ledgerStatus,
		"statistics": stats,
	})
}

func emitJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintln(stderr, "encode:", err)
		return exitInternal
	}
	return exitOK
}
