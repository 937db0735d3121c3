package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersEveryInstrumentOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.RecordsIngested.Inc()
	m.RecordsFlushed.Add(3)
	m.BufferOccupancy.Set(7)
	m.FlushDuration.Observe(0.25)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_PanicsOnDoubleRegistrationAgainstSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "registering the same metric names twice must fail loudly")
}
