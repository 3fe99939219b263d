package usersync

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/golang/glog"

	"github.com/adnexal/bidserver/gdpr"
	"github.com/adnexal/bidserver/metrics"
)

// Status is the per-bidder outcome of a cookie sync request. Bidders which already have a
// live sync produce no Status at all.
type Status struct {
	Bidder       string        `json:"bidder"`
	Error        string        `json:"error,omitempty"`
	NoCookie     bool          `json:"no_cookie,omitempty"`
	UsersyncInfo *UsersyncInfo `json:"usersync,omitempty"`
}

// BidderCatalog is the registry of known bidders the orchestrator resolves names against.
// Implementations must be safe for unsynchronized concurrent reads.
type BidderCatalog interface {
	IsValidName(name string) bool
	IsAlias(name string) bool
	// NameByAlias returns the canonical bidder name for a known alias.
	NameByAlias(alias string) string
	IsActive(name string) bool
	// VendorIDByName resolves aliases and returns the GDPR vendor id of an active bidder.
	VendorIDByName(name string) (uint16, bool)
	// SyncerByName resolves aliases and returns the bidder's usersyncer.
	SyncerByName(name string) (*Usersyncer, bool)
}

// Request carries one cookie sync request after transport-level validation.
type Request struct {
	Bidders  []string
	CoopSync *bool
	Limit    *int
	GDPR     *int
	Consent  string
	Account  string
	// HostCookieUID is the value of the host's own identity cookie, "" if absent.
	HostCookieUID string
	// HostAuditPresent reports whether the identity-audit cookie came with the request.
	// When it is absent a host-bidder status is forced into the response so the following
	// /setuid call can establish it.
	HostAuditPresent bool
}

// Orchestrator resolves a cookie sync request into the ordered list of bidder statuses.
type Orchestrator struct {
	catalog          BidderCatalog
	permissions      gdpr.VendorPermissions
	selector         BidderSelector
	metrics          metrics.Engine
	shuffler         shuffler
	hostVendorID     uint16
	hostBidder       string
	hostCookieFamily string
	externalURL      string
}

// NewOrchestrator wires the cookie sync orchestrator.
func NewOrchestrator(
	catalog BidderCatalog,
	permissions gdpr.VendorPermissions,
	selector BidderSelector,
	metricsEngine metrics.Engine,
	hostVendorID uint16,
	hostBidder string,
	hostCookieFamily string,
	externalURL string,
) *Orchestrator {
	return &Orchestrator{
		catalog:          catalog,
		permissions:      permissions,
		selector:         selector,
		metrics:          metricsEngine,
		shuffler:         randomShuffler{},
		hostVendorID:     hostVendorID,
		hostBidder:       hostBidder,
		hostCookieFamily: hostCookieFamily,
		externalURL:      externalURL,
	}
}

// Orchestrate runs the full sync resolution: cooperative expansion, vendor consent,
// per-bidder status building, the response-size limit and host-bidder placement.
//
// The returned list order is significant: the host bidder, when present, is first.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request, cookie *Cookie) []*Status {
	biddersToSync := o.selector.Select(req.Bidders, req.CoopSync, req.Limit)

	rejected := o.biddersRejectedByGDPR(ctx, req, biddersToSync)
	o.recordGDPRMetrics(biddersToSync, rejected)

	gdprValue := gdprToString(req.GDPR)
	statuses := make([]*Status, 0, len(biddersToSync))
	for _, bidder := range biddersToSync {
		if status := o.statusFor(bidder, cookie, rejected, gdprValue, req.Consent, req.Account, req.HostCookieUID); status != nil {
			statuses = append(statuses, status)
		}
	}
	o.recordMatchMetrics(biddersToSync, statuses)

	statuses = o.applyLimit(statuses, req, gdprValue)
	return o.placeHostFirst(statuses)
}

// biddersRejectedByGDPR returns the bidders excluded from syncing by vendor consent.
//
// A consent lookup failure, and likewise a host vendor which did not itself pass, reject
// every bidder: the response still lists them all, but none may sync.
func (o *Orchestrator) biddersRejectedByGDPR(ctx context.Context, req Request, biddersToSync []string) map[string]bool {
	vendorIDs := make([]uint16, 0, len(biddersToSync)+1)
	for _, bidder := range biddersToSync {
		if id, ok := o.catalog.VendorIDByName(bidder); ok {
			vendorIDs = append(vendorIDs, id)
		}
	}
	vendorIDs = append(vendorIDs, o.hostVendorID)

	rejectAll := func() map[string]bool {
		rejected := make(map[string]bool, len(biddersToSync))
		for _, bidder := range biddersToSync {
			rejected[bidder] = true
		}
		return rejected
	}

	vendorsToGDPR, err := o.permissions.ResultByVendor(ctx, vendorIDs, gdpr.SignalParse(req.GDPR), req.Consent)
	if err != nil {
		glog.Errorf("Vendor consent lookup failed, rejecting all syncs: %v", err)
		return rejectAll()
	}
	// The host vendor must be allowed before any bidder may sync.
	if !vendorsToGDPR[o.hostVendorID] {
		return rejectAll()
	}

	rejected := make(map[string]bool)
	for _, bidder := range biddersToSync {
		id, ok := o.catalog.VendorIDByName(bidder)
		if !ok || !vendorsToGDPR[id] {
			rejected[bidder] = true
		}
	}
	return rejected
}

// statusFor resolves a single bidder, first match wins. A nil return means the bidder
// already has a live sync and nothing needs to happen.
func (o *Orchestrator) statusFor(bidder string, cookie *Cookie, rejected map[string]bool, gdprValue, consent, account, hostCookieUID string) *Status {
	isAlias := o.catalog.IsAlias(bidder)

	if !isAlias && !o.catalog.IsValidName(bidder) {
		return &Status{Bidder: bidder, Error: "Unsupported bidder"}
	}
	if !isAlias && !o.catalog.IsActive(bidder) {
		return &Status{
			Bidder: bidder,
			Error: fmt.Sprintf("%s is not configured properly on this server deploy. "+
				"If you believe this should work, contact the company hosting the service "+
				"and tell them to check their configuration.", bidder),
		}
	}
	if rejected[bidder] || rejected[o.resolveName(bidder)] {
		return &Status{Bidder: bidder, Error: "Rejected by GDPR"}
	}

	syncer, ok := o.catalog.SyncerByName(bidder)
	if !ok {
		return &Status{Bidder: bidder, Error: "Unsupported bidder"}
	}

	hostInfo := o.hostBidderUsersyncInfo(syncer, cookie, hostCookieUID, gdprValue, consent, account)
	if hostInfo == nil && cookie.HasLiveSync(syncer.FamilyName()) {
		return nil
	}
	info := hostInfo
	if info == nil {
		info = syncer.GetUsersyncInfo(gdprValue, consent, account)
	}
	return &Status{Bidder: bidder, NoCookie: true, UsersyncInfo: info}
}

// hostBidderUsersyncInfo returns a sync redirect pointed directly at our own /setuid
// endpoint, or nil if the normal usersync flow applies.
//
// The uids cookie should stay in sync with the host identity cookie, so this fires when
// the syncer shares the configured host cookie family, a host identity value came with
// the request, and the stored UID for that family is missing or different.
func (o *Orchestrator) hostBidderUsersyncInfo(syncer *Usersyncer, cookie *Cookie, hostCookieUID, gdprValue, consent, account string) *UsersyncInfo {
	familyName := syncer.FamilyName()
	if familyName != o.hostCookieFamily || hostCookieUID == "" {
		return nil
	}
	if uid, _, _ := cookie.GetUID(familyName); uid == hostCookieUID {
		return nil
	}
	rawURL := fmt.Sprintf("%s/setuid?bidder=%s&gdpr={{gdpr}}&gdpr_consent={{gdpr_consent}}&uid=%s&account={{account}}",
		o.externalURL, familyName, url.QueryEscape(hostCookieUID))
	return &UsersyncInfo{
		URL:  ResolveMacros(rawURL, gdprValue, consent, account),
		Type: "redirect",
	}
}

// applyLimit enforces the response-size limit, keeping the host bidder reachable.
//
// When the caller explicitly named bidders and no host status survived, the trim happens
// before the host status is appended so a tight limit can never truncate it away. In the
// sync-everything case the host status is appended first and the trim runs last.
func (o *Orchestrator) applyLimit(statuses []*Status, req Request, gdprValue string) []*Status {
	if req.Limit == nil || *req.Limit <= 0 || *req.Limit >= len(statuses) {
		return o.addHostBidderStatus(statuses, req, gdprValue)
	}

	o.shuffler.shuffle(len(statuses), func(i, j int) { statuses[i], statuses[j] = statuses[j], statuses[i] })

	requestHasBidders := len(req.Bidders) > 0
	if requestHasBidders && !o.hostStatusPresent(statuses) {
		return o.addHostBidderStatus(statuses[:*req.Limit], req, gdprValue)
	}
	trimmed := o.addHostBidderStatus(statuses, req, gdprValue)
	if len(trimmed) > *req.Limit {
		trimmed = trimmed[:*req.Limit]
	}
	return trimmed
}

// addHostBidderStatus forces a host-bidder sync into the response when the request came
// without the identity-audit cookie. Without it, /setuid processing for every other
// bidder would fail for lack of an account id.
func (o *Orchestrator) addHostBidderStatus(statuses []*Status, req Request, gdprValue string) []*Status {
	if req.HostAuditPresent || len(statuses) == 0 || o.hostStatusPresent(statuses) {
		return statuses
	}
	syncer, ok := o.catalog.SyncerByName(o.hostBidder)
	if !ok {
		glog.Warningf("Host bidder %s has no usersyncer configured", o.hostBidder)
		return statuses
	}
	return append(statuses, &Status{
		Bidder:       o.hostBidder,
		NoCookie:     true,
		UsersyncInfo: syncer.GetUsersyncInfo(gdprValue, req.Consent, req.Account),
	})
}

func (o *Orchestrator) hostStatusPresent(statuses []*Status) bool {
	for _, status := range statuses {
		if o.resolveName(status.Bidder) == o.hostBidder {
			return true
		}
	}
	return false
}

func (o *Orchestrator) resolveName(bidder string) string {
	if o.catalog.IsAlias(bidder) {
		return o.catalog.NameByAlias(bidder)
	}
	return bidder
}

func (o *Orchestrator) recordGDPRMetrics(biddersToSync []string, rejected map[string]bool) {
	for _, bidder := range biddersToSync {
		if rejected[bidder] {
			o.metrics.RecordCookieSyncGDPRPrevent(bidder)
		} else {
			o.metrics.RecordCookieSyncGen(bidder)
		}
	}
}

// recordMatchMetrics counts the bidders which needed no sync at all.
func (o *Orchestrator) recordMatchMetrics(biddersToSync []string, statuses []*Status) {
	withStatus := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		withStatus[status.Bidder] = struct{}{}
	}
	for _, bidder := range biddersToSync {
		if _, ok := withStatus[bidder]; !ok {
			o.metrics.RecordCookieSyncMatch(bidder)
		}
	}
}

// placeHostFirst moves the host-bidder status to position 0, keeping the relative order
// of everything else.
func (o *Orchestrator) placeHostFirst(statuses []*Status) []*Status {
	hostIndex := -1
	for i, status := range statuses {
		if o.resolveName(status.Bidder) == o.hostBidder {
			hostIndex = i
			break
		}
	}
	if hostIndex <= 0 {
		return statuses
	}
	host := statuses[hostIndex]
	copy(statuses[1:hostIndex+1], statuses[:hostIndex])
	statuses[0] = host
	return statuses
}

func gdprToString(gdpr *int) string {
	if gdpr == nil {
		return ""
	}
	return strconv.Itoa(*gdpr)
}
