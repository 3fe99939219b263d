package metrics

import (
	"fmt"
	"sync"

	metrics "github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics backed Engine. Per-bidder meters are created lazily since the
// bidder list is config-driven.
type Metrics struct {
	MetricsRegistry     metrics.Registry
	CookieSyncMeter     metrics.Meter
	userSyncBadRequest  metrics.Meter
	userSyncOptOut      metrics.Meter
	userSyncGen         map[string]metrics.Meter
	userSyncGDPRPrevent map[string]metrics.Meter
	userSyncMatches     map[string]metrics.Meter
	userSyncRwMutex     sync.RWMutex
}

// NewMetrics builds a Metrics object with eager meters for the known bidders, so the
// reporting backend sees zeroes instead of missing series.
func NewMetrics(registry metrics.Registry, bidders []string) *Metrics {
	m := &Metrics{
		MetricsRegistry:     registry,
		CookieSyncMeter:     metrics.GetOrRegisterMeter("cookie_sync_requests", registry),
		userSyncBadRequest:  metrics.GetOrRegisterMeter("usersync.bad_requests", registry),
		userSyncOptOut:      metrics.GetOrRegisterMeter("usersync.opt_outs", registry),
		userSyncGen:         make(map[string]metrics.Meter),
		userSyncGDPRPrevent: make(map[string]metrics.Meter),
		userSyncMatches:     make(map[string]metrics.Meter),
	}
	for _, bidder := range bidders {
		m.userSyncGen[bidder] = metrics.GetOrRegisterMeter(fmt.Sprintf("usersync.%s.gen", bidder), registry)
		m.userSyncGDPRPrevent[bidder] = metrics.GetOrRegisterMeter(fmt.Sprintf("usersync.%s.gdpr_prevent", bidder), registry)
		m.userSyncMatches[bidder] = metrics.GetOrRegisterMeter(fmt.Sprintf("usersync.%s.matches", bidder), registry)
	}
	return m
}

func (m *Metrics) RecordCookieSync() {
	m.CookieSyncMeter.Mark(1)
}

func (m *Metrics) RecordCookieSyncBadRequest() {
	m.userSyncBadRequest.Mark(1)
}

func (m *Metrics) RecordCookieSyncOptOut() {
	m.userSyncOptOut.Mark(1)
}

func (m *Metrics) RecordCookieSyncGen(bidder string) {
	m.meterFor(m.userSyncGen, bidder, "usersync.%s.gen").Mark(1)
}

func (m *Metrics) RecordCookieSyncGDPRPrevent(bidder string) {
	m.meterFor(m.userSyncGDPRPrevent, bidder, "usersync.%s.gdpr_prevent").Mark(1)
}

func (m *Metrics) RecordCookieSyncMatch(bidder string) {
	m.meterFor(m.userSyncMatches, bidder, "usersync.%s.matches").Mark(1)
}

func (m *Metrics) meterFor(known map[string]metrics.Meter, bidder string, nameFormat string) metrics.Meter {
	m.userSyncRwMutex.RLock()
	meter, ok := known[bidder]
	m.userSyncRwMutex.RUnlock()
	if ok {
		return meter
	}

	m.userSyncRwMutex.Lock()
	defer m.userSyncRwMutex.Unlock()
	if meter, ok := known[bidder]; ok {
		return meter
	}
	meter = metrics.GetOrRegisterMeter(fmt.Sprintf(nameFormat, bidder), m.MetricsRegistry)
	known[bidder] = meter
	return meter
}
