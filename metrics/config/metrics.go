package config

import (
	"time"

	"github.com/golang/glog"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/vrischmann/go-metrics-influxdb"

	"github.com/adnexal/bidserver/config"
	"github.com/adnexal/bidserver/metrics"
	prometheusmetrics "github.com/adnexal/bidserver/metrics/prometheus"
)

// DetailedMetricsEngine is the combined engine plus handles on the concrete backends,
// for the few places (the Prometheus scrape endpoint) that need them.
type DetailedMetricsEngine struct {
	metrics.Engine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine.
// With both backends disabled every record call is a no-op.
func NewMetricsEngine(cfg *config.Configuration, bidders []string) *DetailedMetricsEngine {
	engineList := make(MultiMetricsEngine, 0, 2)
	engine := &DetailedMetricsEngine{}

	if cfg.Metrics.Influxdb.Enabled() {
		registry := gometrics.NewPrefixedRegistry("bidserver.")
		engine.GoMetrics = metrics.NewMetrics(registry, bidders)
		engineList = append(engineList, engine.GoMetrics)

		go influxdb.InfluxDB(
			registry,
			time.Duration(cfg.Metrics.Influxdb.MetricSendInterval)*time.Second,
			cfg.Metrics.Influxdb.Host,
			cfg.Metrics.Influxdb.Database,
			cfg.Metrics.Influxdb.Username,
			cfg.Metrics.Influxdb.Password,
		)
	}
	if cfg.Metrics.Prometheus.Enabled() {
		engine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus)
		engineList = append(engineList, engine.PrometheusMetrics)
	}

	switch len(engineList) {
	case 0:
		glog.Warning("Metrics: no reporting backend configured, counters will be discarded")
		engine.Engine = metrics.NilEngine{}
	case 1:
		engine.Engine = engineList[0]
	default:
		engine.Engine = engineList
	}
	return engine
}

// MultiMetricsEngine fans every record call out to each backend.
type MultiMetricsEngine []metrics.Engine

func (me MultiMetricsEngine) RecordCookieSync() {
	for _, engine := range me {
		engine.RecordCookieSync()
	}
}

func (me MultiMetricsEngine) RecordCookieSyncBadRequest() {
	for _, engine := range me {
		engine.RecordCookieSyncBadRequest()
	}
}

func (me MultiMetricsEngine) RecordCookieSyncOptOut() {
	for _, engine := range me {
		engine.RecordCookieSyncOptOut()
	}
}

func (me MultiMetricsEngine) RecordCookieSyncGen(bidder string) {
	for _, engine := range me {
		engine.RecordCookieSyncGen(bidder)
	}
}

func (me MultiMetricsEngine) RecordCookieSyncGDPRPrevent(bidder string) {
	for _, engine := range me {
		engine.RecordCookieSyncGDPRPrevent(bidder)
	}
}

func (me MultiMetricsEngine) RecordCookieSyncMatch(bidder string) {
	for _, engine := range me {
		engine.RecordCookieSyncMatch(bidder)
	}
}
