// Package metrics exposes read-only Prometheus instrumentation for the
// buffer pool, lock manager, and log manager. None of these counters are
// load-bearing for correctness — they exist purely so an operator can see
// hit rates, abort rates, and flush latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters every component reports into. A nil
// *Registry is valid and every method on it becomes a no-op, so components
// can be constructed without metrics in tests.
type Registry struct {
	BufferPoolHits      prometheus.Counter
	BufferPoolMisses    prometheus.Counter
	BufferPoolEvictions prometheus.Counter

	LockWaits prometheus.Counter
	LockAborts prometheus.Counter

	LogFlushLatency prometheus.Histogram
}

// New registers a fresh set of counters against reg and returns a Registry
// wrapping them. Pass prometheus.NewRegistry() in production, or nil to get
// a Registry whose methods are no-ops (tests typically want this).
func New(reg prometheus.Registerer) *Registry {
	if reg == nil {
		return nil
	}

	m := &Registry{
		BufferPoolHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerdb_buffer_pool_hits_total",
			Help: "Fetch calls served from a resident frame.",
		}),
		BufferPoolMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerdb_buffer_pool_misses_total",
			Help: "Fetch calls that required reading from disk.",
		}),
		BufferPoolEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerdb_buffer_pool_evictions_total",
			Help: "Frames reclaimed from the replacer to satisfy a fetch or new-page call.",
		}),
		LockWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerdb_lock_waits_total",
			Help: "Lock requests that had to block behind an older holder.",
		}),
		LockAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerdb_lock_aborts_total",
			Help: "Lock requests rejected by the wait-die rule or a 2PL protocol violation.",
		}),
		LogFlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerdb_log_flush_seconds",
			Help:    "Wall-clock time spent writing a flush buffer to the log file.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.BufferPoolHits, m.BufferPoolMisses, m.BufferPoolEvictions,
		m.LockWaits, m.LockAborts, m.LogFlushLatency)

	return m
}

func (m *Registry) incBufferHit() {
	if m != nil {
		m.BufferPoolHits.Inc()
	}
}

func (m *Registry) incBufferMiss() {
	if m != nil {
		m.BufferPoolMisses.Inc()
	}
}

func (m *Registry) incEviction() {
	if m != nil {
		m.BufferPoolEvictions.Inc()
	}
}

func (m *Registry) incLockWait() {
	if m != nil {
		m.LockWaits.Inc()
	}
}

func (m *Registry) incLockAbort() {
	if m != nil {
		m.LockAborts.Inc()
	}
}

func (m *Registry) observeFlush(seconds float64) {
	if m != nil {
		m.LogFlushLatency.Observe(seconds)
	}
}

// BufferHit records a buffer pool fetch served from residency.
func (m *Registry) BufferHit() { m.incBufferHit() }

// BufferMiss records a buffer pool fetch that required a disk read.
func (m *Registry) BufferMiss() { m.incBufferMiss() }

// Eviction records a frame reclaimed from the replacer.
func (m *Registry) Eviction() { m.incEviction() }

// LockWait records a lock request that blocked behind an older holder.
func (m *Registry) LockWait() { m.incLockWait() }

// LockAbort records a lock request rejected by wait-die or a protocol violation.
func (m *Registry) LockAbort() { m.incLockAbort() }

// ObserveFlush records how long a log flush took, in seconds.
func (m *Registry) ObserveFlush(seconds float64) { m.observeFlush(seconds) }
