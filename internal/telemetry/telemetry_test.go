package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "houra"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// Instruments from the no-op globals are usable.
	c, err := Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	c.Add(context.Background(), 1)

	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()
}
