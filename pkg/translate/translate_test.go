package translate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranslator struct {
	calls int
	fail  bool
}

func (f *fakeTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("provider down")
	}
	// Nondeterministic provider: output varies per call. The cache must
	// hide this.
	return fmt.Sprintf("translated[%d]: %s", f.calls, text), nil
}

func (f *fakeTranslator) Close() error { return nil }

func TestRun_EnglishPassThrough(t *testing.T) {
	ft := &fakeTranslator{}
	svc := NewService(ft, nil)
	res := svc.Run(context.Background(), "owner RAVI", "en")
	assert.Equal(t, "owner RAVI", res.Text)
	assert.False(t, res.Translated)
	assert.Zero(t, ft.calls)
}

func TestRun_CacheMakesRepeatCallsIdentical(t *testing.T) {
	cache, err := NewLRUCache(8)
	require.NoError(t, err)
	svc := NewService(&fakeTranslator{}, cache)

	first := svc.Run(context.Background(), "ಮಾಲೀಕ ರವಿ", "kn")
	second := svc.Run(context.Background(), "ಮಾಲೀಕ ರವಿ", "kn")
	assert.True(t, first.Translated)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)
}

func TestRun_FailureIsNonFatal(t *testing.T) {
	svc := NewService(&fakeTranslator{fail: true}, nil)
	res := svc.Run(context.Background(), "ಮಾಲೀಕ", "kn")
	assert.Equal(t, "ಮಾಲೀಕ", res.Text)
	assert.Contains(t, res.Warnings, WarnUnavailable)
}

func TestRun_NoTranslatorConfigured(t *testing.T) {
	svc := NewService(nil, nil)
	res := svc.Run(context.Background(), "ಮಾಲೀಕ", "kn")
	assert.Equal(t, "ಮಾಲೀಕ", res.Text)
	assert.Contains(t, res.Warnings, WarnUnavailable)
}

func TestLRUCache_Eviction(t *testing.T) {
	cache, err := NewLRUCache(2)
	require.NoError(t, err)
	ctx := context.Background()

	cache.Put(ctx, "a", "1")
	cache.Put(ctx, "b", "2")
	cache.Put(ctx, "c", "3")

	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)
	v, ok := cache.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestContentKey_Stable(t *testing.T) {
	assert.Equal(t, ContentKey("x", "kn"), ContentKey("x", "kn"))
	assert.NotEqual(t, ContentKey("x", "kn"), ContentKey("y", "kn"))
	assert.NotEqual(t, ContentKey("x", "kn"), ContentKey("x", "te"))
	assert.Len(t, ContentKey("x", "kn"), 64)
}

func TestRun_CacheKeyedPerLanguage(t *testing.T) {
	cache, err := NewLRUCache(8)
	require.NoError(t, err)
	svc := NewService(&fakeTranslator{}, cache)
	ctx := context.Background()

	kn := svc.Run(ctx, "same bytes", "kn")
	te := svc.Run(ctx, "same bytes", "te")
	assert.False(t, te.CacheHit)
	assert.NotEqual(t, kn.Text, te.Text)

	again := svc.Run(ctx, "same bytes", "kn")
	assert.True(t, again.CacheHit)
	assert.Equal(t, kn.Text, again.Text)
}
