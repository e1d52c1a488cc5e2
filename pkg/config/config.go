// Package config loads engine configuration from environment variables,
// optionally overlaid by a YAML profile file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Ledger backend selectors.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config is the full engine configuration.
type Config struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`

	ExtractionTimeout     time.Duration `yaml:"extraction_timeout"`
	TranslationTimeout    time.Duration `yaml:"translation_timeout"`
	ClassificationTimeout time.Duration `yaml:"classification_timeout"`
	LedgerTimeout         time.Duration `yaml:"ledger_timeout"`

	ConfidenceFloor float64 `yaml:"confidence_floor"`
	CharsFloor      int     `yaml:"chars_floor"`

	OCREndpoint         string `yaml:"ocr_endpoint"`
	TranslatorEndpoint  string `yaml:"translator_endpoint"`
	TranslationCacheCap int    `yaml:"translation_cache_capacity"`
	RedisURL            string `yaml:"redis_url"`

	LedgerBackend  string `yaml:"ledger_backend"`
	LedgerEndpoint string `yaml:"ledger_endpoint"`
	LedgerIdentity string `yaml:"ledger_identity"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads configuration from the environment, filling defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                  envString("ENGINE_PORT", "8085"),
		LogLevel:              envString("ENGINE_LOG_LEVEL", "INFO"),
		DatabaseURL:           envString("ENGINE_DATABASE_URL", "proptrust.db"),
		ExtractionTimeout:     60 * time.Second,
		TranslationTimeout:    30 * time.Second,
		ClassificationTimeout: 20 * time.Second,
		LedgerTimeout:         30 * time.Second,
		ConfidenceFloor:       0.5,
		CharsFloor:            200,
		OCREndpoint:           os.Getenv("ENGINE_OCR_ENDPOINT"),
		TranslatorEndpoint:    os.Getenv("ENGINE_TRANSLATOR_ENDPOINT"),
		TranslationCacheCap:   1024,
		RedisURL:              os.Getenv("ENGINE_REDIS_URL"),
		LedgerBackend:         envString("ENGINE_LEDGER_BACKEND", BackendLocal),
		LedgerEndpoint:        os.Getenv("ENGINE_LEDGER_ENDPOINT"),
		LedgerIdentity:        envString("ENGINE_LEDGER_IDENTITY", "proptrust-engine"),
		OTLPEndpoint:          os.Getenv("ENGINE_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.ExtractionTimeout, err = envMillis("ENGINE_EXTRACTION_TIMEOUT_MS", cfg.ExtractionTimeout); err != nil {
		return nil, err
	}
	if cfg.TranslationTimeout, err = envMillis("ENGINE_TRANSLATION_TIMEOUT_MS", cfg.TranslationTimeout); err != nil {
		return nil, err
	}
	if cfg.ClassificationTimeout, err = envMillis("ENGINE_CLASSIFIER_TIMEOUT_MS", cfg.ClassificationTimeout); err != nil {
		return nil, err
	}
	if cfg.LedgerTimeout, err = envMillis("ENGINE_LEDGER_TIMEOUT_MS", cfg.LedgerTimeout); err != nil {
		return nil, err
	}
	if cfg.ConfidenceFloor, err = envFloat("ENGINE_CLASSIFIER_CONFIDENCE_FLOOR", cfg.ConfidenceFloor); err != nil {
		return nil, err
	}
	if cfg.CharsFloor, err = envInt("ENGINE_RISK_DATA_QUALITY_CHARS_FLOOR", cfg.CharsFloor); err != nil {
		return nil, err
	}
	if cfg.TranslationCacheCap, err = envInt("ENGINE_CACHE_TRANSLATION_CAPACITY", cfg.TranslationCacheCap); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case BackendLocal:
	case BackendRemote:
		if c.LedgerEndpoint == "" {
			return fmt.Errorf("config: ledger backend %q requires ENGINE_LEDGER_ENDPOINT", BackendRemote)
		}
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.LedgerBackend)
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("config: confidence floor %v out of [0,1]", c.ConfidenceFloor)
	}
	if c.CharsFloor < 0 {
		return fmt.Errorf("config: chars floor %d is negative", c.CharsFloor)
	}
	if c.TranslationCacheCap <= 0 {
		return fmt.Errorf("config: translation cache capacity %d must be positive", c.TranslationCacheCap)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, v)
	}
	return f, nil
}

func envMillis(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("config: %s=%q is not a positive millisecond count", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
