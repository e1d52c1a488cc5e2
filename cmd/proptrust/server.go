package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/proptrust/engine/pkg/api"
	"github.com/proptrust/engine/pkg/audit"
	"github.com/proptrust/engine/pkg/classify"
	"github.com/proptrust/engine/pkg/config"
	"github.com/proptrust/engine/pkg/engine"
	"github.com/proptrust/engine/pkg/extract"
	"github.com/proptrust/engine/pkg/ledger"
	"github.com/proptrust/engine/pkg/observability"
	"github.com/proptrust/engine/pkg/ocr"
	"github.com/proptrust/engine/pkg/risk"
	"github.com/proptrust/engine/pkg/store"
	"github.com/proptrust/engine/pkg/translate"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func runServer(stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "config:", err)
		return exitBadInput
	}

	log := newLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.New(ctx, &observability.Config{
		ServiceName:    "proptrust-engine",
		ServiceVersion: "1.0.0",
		Environment:    envOrDefault("ENGINE_ENVIRONMENT", "development"),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Insecure:       true,
	}, log)
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		return exitInternal
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	eng, cleanup, err := buildEngine(ctx, cfg, log, telemetry)
	if err != nil {
		log.Error("engine init failed", "error", err)
		return exitInternal
	}
	defer cleanup()

	limiter := api.NewGlobalRateLimiter(20, 40)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(eng, log, limiter).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("listening", "port", cfg.Port, "ledger_backend", cfg.LedgerBackend)

	select {
	case err := <-errCh:
		log.Error("server stopped", "error", err)
		return exitInternal
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
		return exitInternal
	}
	log.Info("stopped")
	return exitOK
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if profile := os.Getenv("ENGINE_PROFILE"); profile != "" {
		if err := cfg.ApplyProfile(profile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildEngine assembles the pipeline from configuration. The returned
// cleanup closes everything in reverse order.
func buildEngine(ctx context.Context, cfg *config.Config, log *slog.Logger, telemetry *observability.Provider) (*engine.Engine, func(), error) {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closers := []func(){func() { _ = db.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	st, err := store.New(db)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	ldg, err := openLedger(ctx, cfg, db)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init ledger: %w", err)
	}
	closers = append(closers, func() { _ = ldg.Close() })

	var extractor ocr.Extractor
	if cfg.OCREndpoint != "" {
		extractor = ocr.NewSidecar(ocr.SidecarConfig{
			Endpoint: cfg.OCREndpoint,
			Timeout:  cfg.ExtractionTimeout,
		})
	} else {
		extractor = ocr.NewPlainText()
	}
	closers = append(closers, func() { _ = extractor.Close() })

	cache, err := openTranslationCache(cfg, &closers)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init translation cache: %w", err)
	}

	var provider translate.Translator
	if cfg.TranslatorEndpoint != "" {
		provider = translate.NewSidecar(translate.SidecarConfig{
			Endpoint: cfg.TranslatorEndpoint,
			Timeout:  cfg.TranslationTimeout,
		})
	}
	translator := translate.NewService(provider, cache)
	closers = append(closers, func() { _ = translator.Close() })

	eng := engine.New(
		extractor,
		translator,
		extract.New(),
		classify.NewRuleClassifier(),
		risk.New(risk.WithCharsFloor(cfg.CharsFloor)),
		ldg,
		st,
		audit.NewStoreLogger(st, log),
		log,
		engine.WithTimeouts(engine.Timeouts{
			Extraction:     cfg.ExtractionTimeout,
			Translation:    cfg.TranslationTimeout,
			Classification: cfg.ClassificationTimeout,
			Ledger:         cfg.LedgerTimeout,
		}),
		engine.WithConfidenceFloor(cfg.ConfidenceFloor),
		engine.WithTelemetry(telemetry),
	)
	return eng, cleanup, nil
}

// openDatabase picks the driver from the URL scheme: postgres:// URLs go to
// lib/pq, anything else is treated as a SQLite path.
func openDatabase(url string) (*sql.DB, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return sql.Open("postgres", url)
	}
	db, err := sql.Open("sqlite", url)
	if err != nil {
		return nil, err
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	return db, nil
}

func openLedger(ctx context.Context, cfg *config.Config, db *sql.DB) (ledger.Ledger, error) {
	switch cfg.LedgerBackend {
	case config.BackendRemote:
		return ledger.DialRemote(ctx, cfg.LedgerEndpoint, cfg.LedgerIdentity)
	default:
		l := ledger.NewSQLLedger(db, ledger.WithVerifier(cfg.LedgerIdentity))
		if err := l.Init(ctx); err != nil {
			return nil, err
		}
		return l, nil
	}
}

func openTranslationCache(cfg *config.Config, closers *[]func()) (translate.Cache, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		*closers = append(*closers, func() { _ = client.Close() })
		return translate.NewRedisCache(client, 24*time.Hour), nil
	}
	return translate.NewLRUCache(cfg.TranslationCacheCap)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
