package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgraph/normgraph/internal/config"
)

func TestInitTracingDisabled(t *testing.T) {
	ctx := context.Background()

	tp, err := InitTracing(ctx, config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)

	// The disabled provider must still shut down cleanly so callers can
	// defer shutdown unconditionally.
	assert.NoError(t, ShutdownTracing(ctx, tp))
}

func TestShutdownTracingNil(t *testing.T) {
	assert.NoError(t, ShutdownTracing(context.Background(), nil))
}
