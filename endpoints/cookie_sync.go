package endpoints

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/adnexal/bidserver/analytics"
	"github.com/adnexal/bidserver/config"
	"github.com/adnexal/bidserver/metrics"
	"github.com/adnexal/bidserver/usersync"
)

// NewCookieSyncEndpoint returns the handler for /cookie_sync.
func NewCookieSyncEndpoint(
	orchestrator *usersync.Orchestrator,
	cfg *config.Configuration,
	metricsEngine metrics.Engine,
	analyticsModule analytics.Module,
) httprouter.Handle {
	deps := &cookieSyncDeps{
		orchestrator:   orchestrator,
		hostCookie:     &cfg.HostCookie,
		enabled:        cfg.UserSync.Enabled,
		defaultTimeout: time.Duration(cfg.DefaultTimeoutMS) * time.Millisecond,
		metrics:        metricsEngine,
		analytics:      analyticsModule,
	}
	return deps.Endpoint
}

type cookieSyncDeps struct {
	orchestrator   *usersync.Orchestrator
	hostCookie     *config.HostCookie
	enabled        bool
	defaultTimeout time.Duration
	metrics        metrics.Engine
	analytics      analytics.Module
}

type cookieSyncRequest struct {
	Bidders  []string `json:"bidders"`
	GDPR     *int     `json:"gdpr"`
	Consent  string   `json:"gdpr_consent"`
	CoopSync *bool    `json:"coop_sync"`
	Limit    *int     `json:"limit"`
	Account  string   `json:"account"`
}

type cookieSyncResponse struct {
	Status       string             `json:"status"`
	BidderStatus []*usersync.Status `json:"bidder_status"`
}

func (deps *cookieSyncDeps) Endpoint(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !deps.enabled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	deps.metrics.RecordCookieSync()

	cookie := usersync.ParseCookieFromRequest(r, deps.hostCookie)
	if !cookie.AllowSyncs() {
		deps.metrics.RecordCookieSyncOptOut()
		deps.rejectWith(w, http.StatusUnauthorized, "User has opted out")
		return
	}

	defer r.Body.Close()
	bodyBytes, err := ioutil.ReadAll(r.Body)
	if err != nil {
		deps.metrics.RecordCookieSyncBadRequest()
		deps.rejectWith(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(bodyBytes) == 0 {
		glog.Info("Incoming /cookie_sync request has no body")
		deps.metrics.RecordCookieSyncBadRequest()
		deps.rejectWith(w, http.StatusBadRequest, "Request has no body")
		return
	}

	if err := checkBiddersKey(bodyBytes); err != nil {
		deps.metrics.RecordCookieSyncBadRequest()
		deps.rejectWith(w, http.StatusBadRequest, "Failed to check request.bidders in request body. Was your JSON well-formed?")
		return
	}

	parsedReq := &cookieSyncRequest{}
	if err := json.Unmarshal(bodyBytes, parsedReq); err != nil {
		glog.Infof("Failed to parse /cookie_sync request body: %v", err)
		deps.metrics.RecordCookieSyncBadRequest()
		deps.rejectWith(w, http.StatusBadRequest, "JSON parse failed")
		return
	}

	if parsedReq.GDPR != nil && *parsedReq.GDPR == 1 && parsedReq.Consent == "" {
		deps.metrics.RecordCookieSyncBadRequest()
		deps.rejectWith(w, http.StatusBadRequest, "gdpr_consent is required if gdpr is 1")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deps.defaultTimeout)
	defer cancel()

	syncReq := usersync.Request{
		Bidders:          parsedReq.Bidders,
		CoopSync:         parsedReq.CoopSync,
		Limit:            parsedReq.Limit,
		GDPR:             parsedReq.GDPR,
		Consent:          parsedReq.Consent,
		Account:          parsedReq.Account,
		HostCookieUID:    usersync.ParseHostCookie(r, deps.hostCookie),
		HostAuditPresent: deps.auditCookiePresent(r),
	}
	bidderStatus := deps.orchestrator.Orchestrate(ctx, syncReq, cookie)

	// The client may have gone away while the consent lookup was pending. The accounting
	// already recorded stays; only the body is skipped.
	if r.Context().Err() != nil {
		glog.Warning("The client already closed the connection, cookie sync response will be skipped")
		return
	}

	response := cookieSyncResponse{
		Status:       cookieSyncStatus(cookie.LiveSyncCount()),
		BidderStatus: bidderStatus,
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(response)

	deps.analytics.LogCookieSyncObject(&analytics.CookieSyncObject{
		Status:       http.StatusOK,
		BidderStatus: bidderStatus,
	})
}

// rejectWith ends the request with a terminal error, mirrored into the analytics log.
func (deps *cookieSyncDeps) rejectWith(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
	deps.analytics.LogCookieSyncObject(&analytics.CookieSyncObject{
		Status: status,
		Errors: []string{message},
	})
}

func (deps *cookieSyncDeps) auditCookiePresent(r *http.Request) bool {
	if deps.hostCookie.AuditCookieName == "" {
		return false
	}
	cookie, err := r.Cookie(deps.hostCookie.AuditCookieName)
	return err == nil && cookie.Value != ""
}

// checkBiddersKey verifies the request body is well-formed enough to read the bidders
// key, without requiring the key to exist.
func checkBiddersKey(body []byte) error {
	if _, _, _, err := jsonparser.Get(body, "bidders"); err != nil && err != jsonparser.KeyPathNotFoundError {
		return err
	}
	return nil
}

func cookieSyncStatus(syncCount int) string {
	if syncCount == 0 {
		return "no_cookie"
	}
	return "ok"
}
