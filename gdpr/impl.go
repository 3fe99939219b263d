package gdpr

import (
	"context"
	"errors"

	"github.com/prebid/go-gdpr/consentconstants"
	"github.com/prebid/go-gdpr/vendorconsent"
)

// This file implements the vendor-consent check backing the cookie sync endpoint.
// Public APIs can be found in gdpr.go

type permissionsImpl struct {
	usersyncIfAmbiguous bool
}

func (p *permissionsImpl) ResultByVendor(ctx context.Context, vendorIDs []uint16, gdprSignal Signal, consent string) (map[uint16]bool, error) {
	gdprSignal = p.normalizeGDPR(gdprSignal)

	if gdprSignal == SignalNo {
		return allVendors(vendorIDs, true), nil
	}

	if consent == "" {
		return allVendors(vendorIDs, false), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsedConsent, err := vendorconsent.ParseString(consent)
	if err != nil {
		return nil, &ErrorMalformedConsent{
			Consent: consent,
			Cause:   err,
		}
	}

	result := make(map[uint16]bool, len(vendorIDs))
	purposeAllowed := parsedConsent.PurposeAllowed(consentconstants.InfoStorageAccess)
	for _, id := range vendorIDs {
		if id == 0 {
			return nil, errors.New("vendor id 0 is not resolvable")
		}
		result[id] = purposeAllowed && parsedConsent.VendorConsent(id)
	}
	return result, nil
}

func (p *permissionsImpl) normalizeGDPR(gdprSignal Signal) Signal {
	if gdprSignal != SignalAmbiguous {
		return gdprSignal
	}
	if p.usersyncIfAmbiguous {
		return SignalNo
	}
	return SignalYes
}

func allVendors(vendorIDs []uint16, allowed bool) map[uint16]bool {
	result := make(map[uint16]bool, len(vendorIDs))
	for _, id := range vendorIDs {
		result[id] = allowed
	}
	return result
}
