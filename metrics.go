package finauth

import "sync/atomic"

// MetricID identifies one client counter.
type MetricID uint16

const (
	// MetricInstallSuccess counts completed installation handshakes.
	MetricInstallSuccess MetricID = iota
	// MetricInstallFailure counts failed installation attempts.
	MetricInstallFailure
	// MetricDeviceRegistered counts completed device registrations.
	MetricDeviceRegistered
	// MetricDeviceRejected counts client-error device rejections, each of
	// which wipes the installation.
	MetricDeviceRejected
	// MetricSessionCreated counts successful session creations/renewals.
	MetricSessionCreated
	// MetricSessionCreationFailed counts failed session creations.
	MetricSessionCreationFailed
	// MetricRenewalJoined counts callers that attached to an in-flight
	// renewal instead of starting their own.
	MetricRenewalJoined
	// MetricVerificationFailed counts response signature mismatches.
	MetricVerificationFailed
	// MetricSchedulerFired counts expiry-timer callbacks.
	MetricSchedulerFired
	// MetricSessionClosed counts explicit logouts.
	MetricSessionClosed

	metricCount
)

// Metrics is a fixed set of atomic counters. All methods are safe for
// concurrent use and nil-receiver safe, so the client can run with metrics
// disabled at zero cost.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc increments the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricCount),
	}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
