package endpoints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"

	"github.com/adnexal/bidserver/analytics"
	"github.com/adnexal/bidserver/bidder"
	"github.com/adnexal/bidserver/config"
	"github.com/adnexal/bidserver/gdpr"
	"github.com/adnexal/bidserver/metrics"
	"github.com/adnexal/bidserver/usersync"
)

func TestCookieSyncDisabled(t *testing.T) {
	cfg := givenConfig()
	cfg.UserSync.Enabled = false

	recorder := doRequest(t, cfg, `{"bidders":["pubmatic"]}`, nil)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestCookieSyncOptedOut(t *testing.T) {
	optOut := &http.Cookie{Name: "trp_optout", Value: "true"}

	recorder := doRequest(t, givenConfig(), `{"bidders":["pubmatic"]}`, []*http.Cookie{optOut})

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "User has opted out\n", recorder.Body.String())
}

func TestCookieSyncNoBody(t *testing.T) {
	recorder := doRequest(t, givenConfig(), "", nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Request has no body\n", recorder.Body.String())
}

func TestCookieSyncMalformedBody(t *testing.T) {
	recorder := doRequest(t, givenConfig(), `{"bidders":`, nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCookieSyncNonArrayBidders(t *testing.T) {
	recorder := doRequest(t, givenConfig(), `{"bidders":"pubmatic"}`, nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "JSON parse failed\n", recorder.Body.String())
}

func TestCookieSyncGDPRWithoutConsent(t *testing.T) {
	recorder := doRequest(t, givenConfig(), `{"bidders":["pubmatic"],"gdpr":1}`, nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "gdpr_consent is required if gdpr is 1\n", recorder.Body.String())
}

func TestCookieSyncNoCookies(t *testing.T) {
	audit := &http.Cookie{Name: "uids-audit", Value: "audit-value"}

	recorder := doRequest(t, givenConfig(), `{"bidders":["pubmatic"]}`, []*http.Cookie{audit})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json; charset=utf-8", recorder.Header().Get("Content-Type"))

	response := parseResponse(t, recorder)
	assert.Equal(t, "no_cookie", response.Status)
	assert.Len(t, response.BidderStatus, 1)
	assert.Equal(t, "pubmatic", response.BidderStatus[0].Bidder)
	assert.True(t, response.BidderStatus[0].NoCookie)
	assert.Contains(t, response.BidderStatus[0].UsersyncInfo.URL, "pubmatic.example.com")
}

func TestCookieSyncWithoutBiddersKeySyncsEveryone(t *testing.T) {
	audit := &http.Cookie{Name: "uids-audit", Value: "audit-value"}

	recorder := doRequest(t, givenConfig(), `{}`, []*http.Cookie{audit})

	assert.Equal(t, http.StatusOK, recorder.Code)
	response := parseResponse(t, recorder)
	assert.Len(t, response.BidderStatus, 2)
	assert.Equal(t, "adnexal", response.BidderStatus[0].Bidder)
	assert.Equal(t, "pubmatic", response.BidderStatus[1].Bidder)
}

func TestCookieSyncStatusOKWithLiveSyncs(t *testing.T) {
	cfg := givenConfig()
	uids := usersync.NewCookie()
	uids.TrySync("someFamily", "123")
	audit := &http.Cookie{Name: "uids-audit", Value: "audit-value"}

	recorder := doRequest(t, cfg, `{"bidders":["pubmatic"]}`, []*http.Cookie{uidsAsHTTPCookie(uids, &cfg.HostCookie), audit})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "ok", parseResponse(t, recorder).Status)
}

func TestCookieSyncSkipsLiveSyncs(t *testing.T) {
	cfg := givenConfig()
	uids := usersync.NewCookie()
	uids.TrySync("pubmatic", "123")
	audit := &http.Cookie{Name: "uids-audit", Value: "audit-value"}

	recorder := doRequest(t, cfg, `{"bidders":["pubmatic"]}`, []*http.Cookie{uidsAsHTTPCookie(uids, &cfg.HostCookie), audit})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, parseResponse(t, recorder).BidderStatus)
}

func TestCookieSyncAddsHostBidderWithoutAuditCookie(t *testing.T) {
	recorder := doRequest(t, givenConfig(), `{"bidders":["pubmatic"]}`, nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	response := parseResponse(t, recorder)
	assert.Len(t, response.BidderStatus, 2)
	assert.Equal(t, "adnexal", response.BidderStatus[0].Bidder)
	assert.Equal(t, "pubmatic", response.BidderStatus[1].Bidder)
}

func TestCookieSyncHostIdentityRedirect(t *testing.T) {
	host := &http.Cookie{Name: "khaos", Value: "host-uid"}
	audit := &http.Cookie{Name: "uids-audit", Value: "audit-value"}

	recorder := doRequest(t, givenConfig(), `{"bidders":["adnexal"],"account":"acct1"}`, []*http.Cookie{host, audit})

	assert.Equal(t, http.StatusOK, recorder.Code)
	response := parseResponse(t, recorder)
	assert.Len(t, response.BidderStatus, 1)
	assert.Equal(t,
		"http://external.com/setuid?bidder=adnexal&gdpr=&gdpr_consent=&uid=host-uid&account=acct1",
		response.BidderStatus[0].UsersyncInfo.URL)
}

func givenConfig() *config.Configuration {
	return &config.Configuration{
		ExternalURL:      "http://external.com",
		DefaultTimeoutMS: 250,
		HostCookie: config.HostCookie{
			Family:          "adnexal",
			CookieName:      "khaos",
			AuditCookieName: "uids-audit",
			OptOutCookie:    config.OptOutCookie{Name: "trp_optout", Value: "true"},
			TTLDays:         90,
		},
		GDPR: config.GDPR{HostVendorID: 52, UsersyncIfAmbiguous: true},
		UserSync: config.UserSync{
			Enabled: true,
		},
		HostBidder: "adnexal",
		Bidders: map[string]config.Bidder{
			"adnexal": {
				Active:       true,
				CookieFamily: "adnexal",
				GDPRVendorID: 52,
				UsersyncURL:  "http://adnexal.example.com/sync?gdpr={{gdpr}}&account={{account}}",
			},
			"pubmatic": {
				Active:       true,
				CookieFamily: "pubmatic",
				GDPRVendorID: 76,
				UsersyncURL:  "http://pubmatic.example.com/sync?gdpr={{gdpr}}",
			},
		},
	}
}

func doRequest(t *testing.T, cfg *config.Configuration, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	catalog, err := bidder.NewCatalog(cfg.Bidders)
	assert.NoError(t, err)

	orchestrator := usersync.NewOrchestrator(
		catalog,
		gdpr.NewVendorPermissions(cfg.GDPR),
		usersync.NewBidderSelector(cfg.UserSync.CoopSyncDefault, [][]string{catalog.ActiveNames()}, catalog.ActiveNames()),
		metrics.NilEngine{},
		uint16(cfg.GDPR.HostVendorID),
		cfg.HostBidder,
		cfg.HostCookie.Family,
		cfg.ExternalURL,
	)
	endpoint := NewCookieSyncEndpoint(orchestrator, cfg, metrics.NilEngine{}, analytics.NilModule{})

	request := httptest.NewRequest("POST", "/cookie_sync", strings.NewReader(body))
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	endpoint(recorder, request, httprouter.Params{})
	return recorder
}

func parseResponse(t *testing.T, recorder *httptest.ResponseRecorder) *cookieSyncResponse {
	t.Helper()
	response := &cookieSyncResponse{}
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), response))
	return response
}

// uidsAsHTTPCookie writes the uids cookie through a throwaway response so the test request
// can carry it the way a browser would.
func uidsAsHTTPCookie(uids *usersync.Cookie, cfg *config.HostCookie) *http.Cookie {
	w := httptest.NewRecorder()
	uids.SetCookieOnResponse(w, cfg)
	return w.Result().Cookies()[0]
}
