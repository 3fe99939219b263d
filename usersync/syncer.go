package usersync

import (
	"fmt"
	"net/url"
	"strings"

	validator "github.com/asaskevich/govalidator"
)

// UsersyncInfo is the redirect descriptor a user agent follows to sync one bidder.
type UsersyncInfo struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	SupportCORS bool   `json:"supportCORS,omitempty"`
}

// Usersyncer builds UsersyncInfo values for one cookie family.
//
// The configured URL may carry {{gdpr}}, {{gdpr_consent}} and {{account}} macros which are
// resolved per request.
type Usersyncer struct {
	familyName  string
	rawURL      string
	syncType    string
	supportCORS bool
}

// NewUsersyncer validates the sync URL and returns a Usersyncer for the family.
func NewUsersyncer(familyName string, usersyncURL string, syncType string, supportCORS bool) (*Usersyncer, error) {
	if familyName == "" {
		return nil, fmt.Errorf("empty cookie family name")
	}
	if syncType == "" {
		syncType = "redirect"
	}
	if resolved := ResolveMacros(usersyncURL, "", "", ""); !validator.IsRequestURL(resolved) {
		return nil, fmt.Errorf("invalid usersync url for family %s: %s", familyName, usersyncURL)
	}
	return &Usersyncer{
		familyName:  familyName,
		rawURL:      usersyncURL,
		syncType:    syncType,
		supportCORS: supportCORS,
	}, nil
}

// FamilyName identifies the key under which this syncer's UID is stored in the uids cookie.
func (s *Usersyncer) FamilyName() string {
	return s.familyName
}

// GetUsersyncInfo returns the sync redirect with privacy macros resolved.
func (s *Usersyncer) GetUsersyncInfo(gdpr string, gdprConsent string, account string) *UsersyncInfo {
	return &UsersyncInfo{
		URL:         ResolveMacros(s.rawURL, gdpr, gdprConsent, account),
		Type:        s.syncType,
		SupportCORS: s.supportCORS,
	}
}

// ResolveMacros substitutes the privacy and account macros in a sync URL.
// Values are query-escaped; an absent value resolves the macro to the empty string.
func ResolveMacros(rawURL string, gdpr string, gdprConsent string, account string) string {
	replacer := strings.NewReplacer(
		"{{gdpr}}", url.QueryEscape(gdpr),
		"{{gdpr_consent}}", url.QueryEscape(gdprConsent),
		"{{account}}", url.QueryEscape(account),
	)
	return replacer.Replace(rawURL)
}
