package gdpr

import (
	"context"

	"github.com/adnexal/bidserver/config"
)

// Signal is the gdpr flag attached to a request, denormalized to cover the "not supplied" case.
type Signal int

const (
	SignalAmbiguous Signal = -1
	SignalNo        Signal = 0
	SignalYes       Signal = 1
)

// SignalParse maps the optional integer carried on the wire to a Signal.
func SignalParse(gdpr *int) Signal {
	if gdpr == nil {
		return SignalAmbiguous
	}
	if *gdpr == 0 {
		return SignalNo
	}
	return SignalYes
}

// VendorPermissions resolves which vendors are permitted to sync identity cookies.
//
// The returned map holds an entry per requested vendor id; a missing entry must be read
// as "not allowed". The context deadline bounds any lookup the implementation performs.
type VendorPermissions interface {
	// If the consent string was nonsensical, the returned error will be an ErrorMalformedConsent.
	ResultByVendor(ctx context.Context, vendorIDs []uint16, gdprSignal Signal, consent string) (map[uint16]bool, error)
}

// NewVendorPermissions builds the consent-string backed VendorPermissions.
func NewVendorPermissions(cfg config.GDPR) VendorPermissions {
	return &permissionsImpl{
		usersyncIfAmbiguous: cfg.UsersyncIfAmbiguous,
	}
}

// An ErrorMalformedConsent will be returned by VendorPermissions if the consent string
// argument was the reason for the failure.
type ErrorMalformedConsent struct {
	Consent string
	Cause   error
}

func (e *ErrorMalformedConsent) Error() string {
	return "malformed consent string " + e.Consent + ": " + e.Cause.Error()
}
