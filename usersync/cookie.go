package usersync

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/adnexal/bidserver/config"
)

const uidCookieName = "uids"

// uidTTL is the default amount of time which a synced UID is considered valid.
const uidTTL = 14 * 24 * time.Hour

// Cookie is the uids cookie used to track which bidders have a synced identity for this user.
//
// To get an instance of this from a request, use ParseCookieFromRequest.
// To write an instance onto a response, use SetCookieOnResponse.
type Cookie struct {
	uids     map[string]uidWithExpiry
	optOut   bool
	birthday *time.Time
}

// uidWithExpiry bundles the UID with an Expiration date.
// After the expiration, the UID is no longer valid.
type uidWithExpiry struct {
	// UID is the ID given to a user by a particular bidder.
	UID string `json:"uid"`
	// Expires is the time at which this UID should no longer apply.
	Expires time.Time `json:"expires"`
}

// ParseCookieFromRequest parses the uids cookie from an HTTP request, honoring the
// host-level opt-out cookie if one is configured.
func ParseCookieFromRequest(r *http.Request, cfg *config.HostCookie) *Cookie {
	if cfg.OptOutCookie.Name != "" {
		optOutCookie, err := r.Cookie(cfg.OptOutCookie.Name)
		if err == nil && optOutCookie.Value == cfg.OptOutCookie.Value {
			pc := NewCookie()
			pc.optOut = true
			return pc
		}
	}
	cookie, err := r.Cookie(uidCookieName)
	if err != nil {
		return NewCookie()
	}
	return ParseCookie(cookie)
}

// ParseCookie parses the uids cookie from a raw HTTP cookie.
func ParseCookie(cookie *http.Cookie) *Cookie {
	pc := NewCookie()

	j, err := base64.URLEncoding.DecodeString(cookie.Value)
	if err != nil {
		// corrupted cookie; we should reset
		return pc
	}
	// The error on Unmarshal here isn't terribly important.
	// If the cookie has been corrupted, we should reset to an empty one anyway.
	json.Unmarshal(j, pc)
	return pc
}

// ParseHostCookie returns the host's own identity cookie value, or "" if it isn't present.
func ParseHostCookie(r *http.Request, cfg *config.HostCookie) string {
	if cfg.CookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewCookie returns a Cookie with no syncs.
func NewCookie() *Cookie {
	t := time.Now()
	return &Cookie{
		uids:     make(map[string]uidWithExpiry),
		birthday: &t,
	}
}

// AllowSyncs is true if the user lets bidders sync cookies, and false otherwise.
func (cookie *Cookie) AllowSyncs() bool {
	return cookie != nil && !cookie.optOut
}

// SetPreference is used to change whether or not we're allowed to sync cookies for this user.
func (cookie *Cookie) SetPreference(allow bool) {
	if allow {
		cookie.optOut = false
	} else {
		cookie.optOut = true
		cookie.uids = make(map[string]uidWithExpiry)
	}
}

// GetUID returns the UID for the given family along with whether it existed and is still active.
func (cookie *Cookie) GetUID(familyName string) (string, bool, bool) {
	if value, ok := cookie.uids[familyName]; ok {
		return value.UID, true, time.Now().Before(value.Expires)
	}
	return "", false, false
}

// HasLiveSync returns true if we have an active UID for the given family, and false otherwise.
func (cookie *Cookie) HasLiveSync(familyName string) bool {
	_, _, isLive := cookie.GetUID(familyName)
	return isLive
}

// LiveSyncCount returns the number of families which have active UIDs for this user.
func (cookie *Cookie) LiveSyncCount() int {
	now := time.Now()
	numSyncs := 0
	if cookie != nil {
		for _, value := range cookie.uids {
			if now.Before(value.Expires) {
				numSyncs++
			}
		}
	}
	return numSyncs
}

// HasAnyLiveSyncs returns true if this cookie has at least one active sync.
func (cookie *Cookie) HasAnyLiveSyncs() bool {
	return cookie.LiveSyncCount() > 0
}

// TrySync tries to set the UID for some family name. It returns an error if the set didn't happen.
func (cookie *Cookie) TrySync(familyName string, uid string) error {
	if !cookie.AllowSyncs() {
		return errors.New("the user has opted out of synced cookies")
	}

	cookie.uids[familyName] = uidWithExpiry{
		UID:     uid,
		Expires: time.Now().Add(uidTTL),
	}
	return nil
}

// Unsync removes the UID for the given family from this cookie.
func (cookie *Cookie) Unsync(familyName string) {
	delete(cookie.uids, familyName)
}

// SetCookieOnResponse sets the uids cookie on an HTTP response.
func (cookie *Cookie) SetCookieOnResponse(w http.ResponseWriter, cfg *config.HostCookie) {
	httpCookie := &http.Cookie{
		Name:    uidCookieName,
		Value:   cookie.encode(),
		Expires: time.Now().Add(cfg.TTLDuration()),
		Path:    "/",
	}
	if cfg.Domain != "" {
		httpCookie.Domain = cfg.Domain
	}
	http.SetCookie(w, httpCookie)
}

func (cookie *Cookie) encode() string {
	j, _ := json.Marshal(cookie)
	return base64.URLEncoding.EncodeToString(j)
}

type cookieJson struct {
	UIDs     map[string]uidWithExpiry `json:"tempUIDs,omitempty"`
	OptOut   bool                     `json:"optout,omitempty"`
	Birthday *time.Time               `json:"bday,omitempty"`
}

func (cookie *Cookie) MarshalJSON() ([]byte, error) {
	return json.Marshal(cookieJson{
		UIDs:     cookie.uids,
		OptOut:   cookie.optOut,
		Birthday: cookie.birthday,
	})
}

func (cookie *Cookie) UnmarshalJSON(b []byte) error {
	var cookieContract cookieJson
	if err := json.Unmarshal(b, &cookieContract); err != nil {
		return err
	}
	cookie.optOut = cookieContract.OptOut
	cookie.birthday = cookieContract.Birthday
	if cookie.optOut {
		cookie.uids = make(map[string]uidWithExpiry)
	} else {
		cookie.uids = cookieContract.UIDs
	}
	if cookie.uids == nil {
		cookie.uids = make(map[string]uidWithExpiry)
	}
	return nil
}
