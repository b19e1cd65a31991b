// ABOUTME: Prometheus collectors for the store router and lifecycle paths
// ABOUTME: Implements the metrics sink interfaces consumed by store and auth

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all wrenchd collectors, registered on a private registry so
// tests can construct them independently.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	storesOpened  prometheus.Counter
	storesEvicted prometheus.Counter
	openHandles   prometheus.GaugeFunc

	loginsSucceeded prometheus.Counter
	loginsRejected  *prometheus.CounterVec

	tenantsPurged prometheus.Counter
}

// HandleCounter reports the current number of open store handles.
type HandleCounter interface {
	Len() int
}

// New creates and registers all collectors. handles reports the number of
// open store handles for the gauge; nil reads as zero.
func New(handles HandleCounter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrenchd_store_cache_hits_total",
			Help: "Store cache lookups served from an open handle.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrenchd_store_cache_misses_total",
			Help: "Store cache lookups that required an open.",
		}),
		storesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrenchd_stores_opened_total",
			Help: "Tenant store files opened and migrated.",
		}),
		storesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrenchd_stores_evicted_total",
			Help: "Tenant store handles evicted from the cache.",
		}),
		loginsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrenchd_logins_succeeded_total",
			Help: "Successful logins.",
		}),
		loginsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrenchd_logins_rejected_total",
			Help: "Rejected logins by server-side reason.",
		}, []string{"reason"}),
		tenantsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrenchd_tenants_purged_total",
			Help: "Tenant store files hard-deleted by the purge job.",
		}),
	}

	m.openHandles = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wrenchd_open_store_handles",
		Help: "Currently open tenant store handles.",
	}, func() float64 {
		if handles == nil {
			return 0
		}
		return float64(handles.Len())
	})

	m.registry.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.storesOpened,
		m.storesEvicted,
		m.openHandles,
		m.loginsSucceeded,
		m.loginsRejected,
		m.tenantsPurged,
	)

	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheHit implements store.CacheMetrics.
func (m *Metrics) CacheHit() { m.cacheHits.Inc() }

// CacheMiss implements store.CacheMetrics.
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

// StoreOpened implements store.CacheMetrics.
func (m *Metrics) StoreOpened() { m.storesOpened.Inc() }

// StoreEvicted implements store.CacheMetrics.
func (m *Metrics) StoreEvicted() { m.storesEvicted.Inc() }

// LoginSucceeded implements auth.LoginMetrics.
func (m *Metrics) LoginSucceeded() { m.loginsSucceeded.Inc() }

// LoginRejected implements auth.LoginMetrics.
func (m *Metrics) LoginRejected(reason string) {
	m.loginsRejected.WithLabelValues(reason).Inc()
}

// TenantsPurged records purge job deletions.
func (m *Metrics) TenantsPurged(n int) {
	m.tenantsPurged.Add(float64(n))
}
