package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// profileOverlay mirrors Config with every field optional, so a profile
// file only states what it changes.
type profileOverlay struct {
	Port        *string `yaml:"port"`
	LogLevel    *string `yaml:"log_level"`
	DatabaseURL *string `yaml:"database_url"`

	ExtractionTimeoutMs     *int `yaml:"extraction_timeout_ms"`
	TranslationTimeoutMs    *int `yaml:"translation_timeout_ms"`
	ClassificationTimeoutMs *int `yaml:"classifier_timeout_ms"`
	LedgerTimeoutMs         *int `yaml:"ledger_timeout_ms"`

	ConfidenceFloor *float64 `yaml:"confidence_floor"`
	CharsFloor      *int     `yaml:"chars_floor"`

	OCREndpoint         *string `yaml:"ocr_endpoint"`
	TranslatorEndpoint  *string `yaml:"translator_endpoint"`
	TranslationCacheCap *int    `yaml:"translation_cache_capacity"`
	RedisURL            *string `yaml:"redis_url"`

	LedgerBackend  *string `yaml:"ledger_backend"`
	LedgerEndpoint *string `yaml:"ledger_endpoint"`
	LedgerIdentity *string `yaml:"ledger_identity"`

	OTLPEndpoint *string `yaml:"otlp_endpoint"`
}

// ApplyProfile overlays a YAML profile file onto the configuration. Fields
// absent from the file keep their current values.
func (c *Config) ApplyProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", path, err)
	}

	var p profileOverlay
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}

	setString(&c.Port, p.Port)
	setString(&c.LogLevel, p.LogLevel)
	setString(&c.DatabaseURL, p.DatabaseURL)
	setMillis(&c.ExtractionTimeout, p.ExtractionTimeoutMs)
	setMillis(&c.TranslationTimeout, p.TranslationTimeoutMs)
	setMillis(&c.ClassificationTimeout, p.ClassificationTimeoutMs)
	setMillis(&c.LedgerTimeout, p.LedgerTimeoutMs)
	if p.ConfidenceFloor != nil {
		c.ConfidenceFloor = *p.ConfidenceFloor
	}
	if p.CharsFloor != nil {
		c.CharsFloor = *p.CharsFloor
	}
	setString(&c.OCREndpoint, p.OCREndpoint)
	setString(&c.TranslatorEndpoint, p.TranslatorEndpoint)
	if p.TranslationCacheCap != nil {
		c.TranslationCacheCap = *p.TranslationCacheCap
	}
	setString(&c.RedisURL, p.RedisURL)
	setString(&c.LedgerBackend, p.LedgerBackend)
	setString(&c.LedgerEndpoint, p.LedgerEndpoint)
	setString(&c.LedgerIdentity, p.LedgerIdentity)
	setString(&c.OTLPEndpoint, p.OTLPEndpoint)

	return c.Validate()
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setMillis(dst *time.Duration, src *int) {
	if src != nil {
		*dst = time.Duration(*src) * time.Millisecond
	}
}
