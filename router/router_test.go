package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adnexal/bidserver/config"
)

func TestNewRouter(t *testing.T) {
	handler, err := New(givenConfig())
	assert.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/status", nil))
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("POST", "/cookie_sync", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestNewRouterRejectsBadBidderConfig(t *testing.T) {
	cfg := givenConfig()
	cfg.Bidders["pubmatic"] = config.Bidder{
		Active:       true,
		CookieFamily: "pubmatic",
		UsersyncURL:  "not a url",
	}

	_, err := New(cfg)

	assert.Error(t, err)
}

func TestCORSSupport(t *testing.T) {
	handler, err := New(givenConfig())
	assert.NoError(t, err)

	request := httptest.NewRequest("OPTIONS", "/cookie_sync", nil)
	request.Header.Set("Origin", "http://pub.example.com")
	request.Header.Set("Access-Control-Request-Method", "POST")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "http://pub.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func givenConfig() *config.Configuration {
	return &config.Configuration{
		ExternalURL:      "http://external.com",
		DefaultTimeoutMS: 250,
		HostCookie:       config.HostCookie{Family: "adnexal"},
		GDPR:             config.GDPR{HostVendorID: 52},
		UserSync:         config.UserSync{Enabled: true},
		HostBidder:       "adnexal",
		Bidders: map[string]config.Bidder{
			"adnexal": {
				Active:       true,
				CookieFamily: "adnexal",
				GDPRVendorID: 52,
				UsersyncURL:  "http://adnexal.example.com/sync?gdpr={{gdpr}}",
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
