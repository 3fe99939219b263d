package prometheusmetrics

import (
	"github.com/adnexal/bidserver/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus metrics backing the Engine interface.
type Metrics struct {
	Registry        *prometheus.Registry
	cookieSync      prometheus.Counter
	syncBadRequests prometheus.Counter
	syncOptOuts     prometheus.Counter
	syncGen         *prometheus.CounterVec
	syncGDPRPrevent *prometheus.CounterVec
	syncMatches     *prometheus.CounterVec
}

// NewMetrics registers the cookie sync counters on a fresh registry.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
	}
	m.cookieSync = newCounter(cfg, "cookie_sync_requests_total",
		"Count of requests to the /cookie_sync endpoint.")
	m.syncBadRequests = newCounter(cfg, "usersync_bad_requests_total",
		"Count of malformed /cookie_sync requests.")
	m.syncOptOuts = newCounter(cfg, "usersync_opt_outs_total",
		"Count of /cookie_sync requests from users who opted out.")
	m.syncGen = newCounterVec(cfg, "usersync_gen_total",
		"Count of syncs offered, per bidder.")
	m.syncGDPRPrevent = newCounterVec(cfg, "usersync_gdpr_prevent_total",
		"Count of syncs blocked by vendor consent, per bidder.")
	m.syncMatches = newCounterVec(cfg, "usersync_matches_total",
		"Count of bidders which already had a live sync, per bidder.")

	m.Registry.MustRegister(m.cookieSync, m.syncBadRequests, m.syncOptOuts,
		m.syncGen, m.syncGDPRPrevent, m.syncMatches)
	return m
}

func newCounter(cfg config.PrometheusMetrics, name string, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	})
}

func newCounterVec(cfg config.PrometheusMetrics, name string, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}, []string{"bidder"})
}

func (m *Metrics) RecordCookieSync() {
	m.cookieSync.Inc()
}

func (m *Metrics) RecordCookieSyncBadRequest() {
	m.syncBadRequests.Inc()
}

func (m *Metrics) RecordCookieSyncOptOut() {
	m.syncOptOuts.Inc()
}

func (m *Metrics) RecordCookieSyncGen(bidder string) {
	m.syncGen.WithLabelValues(bidder).Inc()
}

func (m *Metrics) RecordCookieSyncGDPRPrevent(bidder string) {
	m.syncGDPRPrevent.WithLabelValues(bidder).Inc()
}

func (m *Metrics) RecordCookieSyncMatch(bidder string) {
	m.syncMatches.WithLabelValues(bidder).Inc()
}
