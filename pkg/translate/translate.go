// Package translate wraps the external machine-translation capability. The
// stage is optional: English input passes through untouched, and a failing
// provider degrades to the original text with a warning rather than failing
// the pipeline.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Stage name used in typed errors and warnings.
const Stage = "translation"

// WarnUnavailable is the warning annotation attached when translation
// degrades to pass-through.
const WarnUnavailable = "translation_unavailable"

// Translator is the external capability contract.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) (string, error)
	Close() error
}

// Result is the stage output. Text always holds usable content.
type Result struct {
	Text       string
	Translated bool
	CacheHit   bool
	Warnings   []string
}

// Service decorates a Translator with content-hash caching and soft-fail
// semantics. Repeat calls for the same cleaned text return identical output,
// which is what keeps fingerprints stable when a provider is nondeterministic.
type Service struct {
	translator Translator
	cache      Cache
}

// NewService builds the caching wrapper. cache may be nil to disable caching.
func NewService(t Translator, cache Cache) *Service {
	return &Service{translator: t, cache: cache}
}

// ContentKey is the cache key for a cleaned text: hex SHA-256 over the
// source language and the text bytes. The language is part of the key so
// identical text in two scripts never shares an entry.
func ContentKey(text, lang string) string {
	h := sha256.New()
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Run translates text when lang is non-English. Failures never propagate:
// the caller receives the input text plus a translation_unavailable warning.
func (s *Service) Run(ctx context.Context, text, lang string) Result {
	if text == "" || lang == "" || lang == "en" {
		return Result{Text: text}
	}
	if s.translator == nil {
		return Result{Text: text, Warnings: []string{WarnUnavailable}}
	}

	key := ContentKey(text, lang)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return Result{Text: cached, Translated: true, CacheHit: true}
		}
	}

	translated, err := s.translator.Translate(ctx, text, lang)
	if err != nil || translated == "" {
		return Result{Text: text, Warnings: []string{WarnUnavailable}}
	}

	if s.cache != nil {
		s.cache.Put(ctx, key, translated)
	}
	return Result{Text: translated, Translated: true}
}

// Close releases the underlying provider.
func (s *Service) Close() error {
	if s.translator == nil {
		return nil
	}
	return s.translator.Close()
}
