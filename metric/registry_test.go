package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bundy",
		Subsystem: "cfgmgr",
		Name:      "test_total",
		Help:      "test counter",
	})

	require.NoError(t, r.Register("cfgmgr", "test", counter))

	// Same component-scoped name twice is rejected
	err := r.Register("cfgmgr", "test", counter)
	assert.Error(t, err)

	assert.True(t, r.Unregister("cfgmgr", "test"))
	assert.False(t, r.Unregister("cfgmgr", "test"))

	// After unregistration the name is free again
	assert.NoError(t, r.Register("cfgmgr", "test", counter))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r.Handler())
	assert.NotNil(t, r.PrometheusRegistry())
}
