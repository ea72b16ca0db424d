package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProviderExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := NewProvider(exp, "urlbot-test")

	_, span := tp.Tracer("test").Start(context.Background(), "urlinfo.dispatch")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "urlinfo.dispatch", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}
