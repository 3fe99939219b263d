package metrics

// Engine is the interface the rest of the server uses to record counters. Implementations
// must tolerate concurrent calls; counts are best-effort sampling data, not state.
type Engine interface {
	// RecordCookieSync counts a request to the /cookie_sync endpoint.
	RecordCookieSync()
	RecordCookieSyncBadRequest()
	RecordCookieSyncOptOut()
	// RecordCookieSyncGen counts a bidder offered a sync in a response.
	RecordCookieSyncGen(bidder string)
	// RecordCookieSyncGDPRPrevent counts a bidder excluded from syncing by vendor consent.
	RecordCookieSyncGDPRPrevent(bidder string)
	// RecordCookieSyncMatch counts a bidder which already had a live sync.
	RecordCookieSyncMatch(bidder string)
}

// NilEngine is an Engine which does nothing. Useful for tests and for disabled deploys.
type NilEngine struct{}

func (NilEngine) RecordCookieSync()                        {}
func (NilEngine) RecordCookieSyncBadRequest()              {}
func (NilEngine) RecordCookieSyncOptOut()                  {}
func (NilEngine) RecordCookieSyncGen(bidder string)        {}
func (NilEngine) RecordCookieSyncGDPRPrevent(bidder string) {}
func (NilEngine) RecordCookieSyncMatch(bidder string)      {}
