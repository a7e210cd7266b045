package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "koravi"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	defer span.End()
	require.False(t, span.SpanContext().IsSampled())
}

func TestSamplerFor(t *testing.T) {
	require.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	require.Contains(t, samplerFor(0).Description(), "AlwaysOnSampler")
	require.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}
