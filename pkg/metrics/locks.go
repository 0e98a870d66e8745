package metrics

import "github.com/prometheus/client_golang/prometheus"

// LockCacheMetrics exposes gauges for the in-process reservation lock cache.
type LockCacheMetrics struct {
	active *prometheus.GaugeVec
}

// NewLockCacheMetrics registers the lock cache gauges on the provided registerer.
func NewLockCacheMetrics(reg prometheus.Registerer) *LockCacheMetrics {
	if reg == nil {
		return &LockCacheMetrics{}
	}
	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reservation_locks",
		Help: "Reservation lock cache entries by state.",
	}, []string{"state"})
	reg.MustRegister(active)
	return &LockCacheMetrics{active: active}
}

// SetActive records the number of unexpired holds.
func (m *LockCacheMetrics) SetActive(count int) {
	if m == nil || m.active == nil {
		return
	}
	m.active.WithLabelValues("active").Set(float64(count))
}

// SetTotal records the total number of cache entries including expired ones
// the sweep has not purged yet.
func (m *LockCacheMetrics) SetTotal(count int) {
	if m == nil || m.active == nil {
		return
	}
	m.active.WithLabelValues("total").Set(float64(count))
}
