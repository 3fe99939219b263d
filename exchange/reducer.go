package exchange

import (
	"strings"

	"github.com/mxmCherry/openrtb"
)

// RemoveRedundantBids removes bids with the same impId from one bidder's response,
// taking into account whether a bid carries a deal.
//
// The function is pure. When nothing needed to be removed it returns the given response
// unchanged, so callers can cheaply detect a no-op by identity.
func RemoveRedundantBids(response *BidderResponse, imps []openrtb.Imp) *BidderResponse {
	bids := response.Bids
	if len(bids) < 2 {
		return response
	}

	idToImp := make(map[string]*openrtb.Imp, len(imps))
	for i := range imps {
		idToImp[imps[i].ID] = &imps[i]
	}

	// Bids referencing an unknown imp id all group under the nil key and reduce together.
	impToBids := make(map[*openrtb.Imp][]*BidderBid)
	groupOrder := make([]*openrtb.Imp, 0, len(imps))
	for _, bid := range bids {
		imp := idToImp[bid.Bid.ImpID]
		if _, seen := impToBids[imp]; !seen {
			groupOrder = append(groupOrder, imp)
		}
		impToBids[imp] = append(impToBids[imp], bid)
	}

	kept := make([]*BidderBid, 0, len(bids))
	for _, imp := range groupOrder {
		kept = append(kept, reduceBidsForImp(impToBids[imp], imp)...)
	}

	if len(kept) == len(bids) {
		return response
	}
	updated := *response
	updated.Bids = kept
	return &updated
}

func reduceBidsForImp(bids []*BidderBid, imp *openrtb.Imp) []*BidderBid {
	if len(bids) < 2 {
		return bids
	}
	for _, bid := range bids {
		if bid.Bid.DealID != "" {
			return removeRedundantDealBids(bids, imp)
		}
	}
	return []*BidderBid{highestPriceBid(bids, bids)}
}

func removeRedundantDealBids(bids []*BidderBid, imp *openrtb.Imp) []*BidderBid {
	pgDeals := pgDealsFor(imp)
	if len(pgDeals) == 0 {
		return removeRedundantNonPgDealBids(bids)
	}
	return removeRedundantPgDealBids(bids, pgDeals)
}

// removeRedundantNonPgDealBids keeps the highest-price bid among those carrying a deal.
// Deal bids always win over a higher-priced open bid.
func removeRedundantNonPgDealBids(bids []*BidderBid) []*BidderBid {
	dealBids := make([]*BidderBid, 0, len(bids))
	for _, bid := range bids {
		if strings.TrimSpace(bid.Bid.DealID) != "" {
			dealBids = append(dealBids, bid)
		}
	}
	return []*BidderBid{highestPriceBid(bids, dealBids)}
}

// removeRedundantPgDealBids keeps every bid matching the top programmatic-guaranteed deal.
// Several bids may legitimately share the winning deal id.
func removeRedundantPgDealBids(bids []*BidderBid, pgDeals []openrtb.Deal) []*BidderBid {
	topDealID, ok := topDealID(pgDeals, bids)
	if !ok {
		return bids
	}
	kept := make([]*BidderBid, 0, len(bids))
	for _, bid := range bids {
		if bid.Bid.DealID == topDealID {
			kept = append(kept, bid)
		}
	}
	return kept
}

// topDealID scans the imp's deals in priority order and returns the first deal id
// actually present among the bids. There is no guarantee any bid carries the top deal,
// so the first one found wins.
func topDealID(pgDeals []openrtb.Deal, bids []*BidderBid) (string, bool) {
	dealIDs := make(map[string]struct{}, len(bids))
	for _, bid := range bids {
		dealIDs[bid.Bid.DealID] = struct{}{}
	}
	for _, deal := range pgDeals {
		if _, ok := dealIDs[deal.ID]; ok {
			return deal.ID, true
		}
	}
	return "", false
}

// highestPriceBid returns the first maximum-price bid among candidates, falling back to
// the whole group when candidates is empty.
func highestPriceBid(bids []*BidderBid, candidates []*BidderBid) *BidderBid {
	if len(candidates) == 0 {
		candidates = bids
	}
	best := candidates[0]
	for _, bid := range candidates[1:] {
		if bid.Bid.Price > best.Bid.Price {
			best = bid
		}
	}
	return best
}

func pgDealsFor(imp *openrtb.Imp) []openrtb.Deal {
	if imp == nil || imp.PMP == nil {
		return nil
	}
	return imp.PMP.Deals
}
