package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCountersAgainstRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.BufferHit()
	m.BufferMiss()
	m.Eviction()
	m.LockWait()
	m.LockAbort()
	m.ObserveFlush(0.01)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNilRegistrarYieldsNilRegistryWhoseMethodsAreNoops(t *testing.T) {
	m := New(nil)
	require.Nil(t, m)

	require.NotPanics(t, func() {
		m.BufferHit()
		m.BufferMiss()
		m.Eviction()
		m.LockWait()
		m.LockAbort()
		m.ObserveFlush(1)
	})
}
