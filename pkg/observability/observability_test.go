package observability

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDisabledProviderIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTLPEndpoint = ""

	p, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)

	ctx, done := p.TrackOperation(context.Background(), "verify",
		attribute.String("property_id", "prop-1"),
	)
	assert.NotNil(t, ctx)
	done(errors.New("boom"))

	p.RecordError(context.Background(), errors.New("boom"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNilConfigUsesDefaults(t *testing.T) {
	p, err := New(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "proptrust-engine", p.config.ServiceName)
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Empty(t, cfg.OTLPEndpoint)
}
