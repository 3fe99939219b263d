package router

import (
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/adnexal/bidserver/analytics"
	"github.com/adnexal/bidserver/bidder"
	"github.com/adnexal/bidserver/config"
	"github.com/adnexal/bidserver/endpoints"
	"github.com/adnexal/bidserver/gdpr"
	metricsConfig "github.com/adnexal/bidserver/metrics/config"
	"github.com/adnexal/bidserver/usersync"
)

// New wires the application together and returns the HTTP handler to serve.
func New(cfg *config.Configuration) (http.Handler, error) {
	catalog, err := bidder.NewCatalog(cfg.Bidders)
	if err != nil {
		return nil, fmt.Errorf("bidder catalog: %v", err)
	}
	activeBidders := catalog.ActiveNames()

	metricsEngine := metricsConfig.NewMetricsEngine(cfg, activeBidders)
	analyticsModule := newAnalytics(cfg)

	// With no priority groups configured, cooperative syncing draws from every active bidder.
	priorityGroups := cfg.UserSync.PriorityGroups
	if len(priorityGroups) == 0 {
		priorityGroups = [][]string{activeBidders}
	}
	selector := usersync.NewBidderSelector(cfg.UserSync.CoopSyncDefault, priorityGroups, activeBidders)

	orchestrator := usersync.NewOrchestrator(
		catalog,
		gdpr.NewVendorPermissions(cfg.GDPR),
		selector,
		metricsEngine,
		uint16(cfg.GDPR.HostVendorID),
		cfg.HostBidder,
		cfg.HostCookie.Family,
		cfg.ExternalURL,
	)

	r := httprouter.New()
	r.POST("/cookie_sync", endpoints.NewCookieSyncEndpoint(orchestrator, cfg, metricsEngine, analyticsModule))
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	if metricsEngine.PrometheusMetrics != nil {
		r.Handler("GET", "/metrics", promhttp.HandlerFor(metricsEngine.PrometheusMetrics.Registry, promhttp.HandlerOpts{}))
	}

	return SupportCORS(r), nil
}

func newAnalytics(cfg *config.Configuration) analytics.Module {
	if cfg.Analytics.File.Filename == "" {
		return analytics.NilModule{}
	}
	module, err := analytics.NewFileLogger(cfg.Analytics.File.Filename)
	if err != nil {
		glog.Errorf("Could not initialize file analytics (%v), transactions will not be logged", err)
		return analytics.NilModule{}
	}
	return module
}

// SupportCORS wraps the router with a permissive CORS policy. Credentials must be allowed
// for the sync cookies to ride along, which forbids the * origin:
// - https://github.com/rs/cors/issues/55
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
