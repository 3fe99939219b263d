package exchange

import (
	"testing"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"
)

func TestRemoveRedundantBidsNoopForDistinctImps(t *testing.T) {
	response := givenResponse(
		bid("imp1", 1.0, ""),
		bid("imp2", 2.0, ""),
		bid("imp3", 3.0, "d1"),
	)
	imps := []openrtb.Imp{{ID: "imp1"}, {ID: "imp2"}, {ID: "imp3"}}

	result := RemoveRedundantBids(response, imps)

	assert.Same(t, response, result)
}

func TestRemoveRedundantBidsNoopForSingleBid(t *testing.T) {
	response := givenResponse(bid("imp1", 1.0, ""))

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Same(t, response, result)
}

func TestRemoveRedundantBidsKeepsHighestPrice(t *testing.T) {
	response := givenResponse(
		bid("imp1", 1.5, ""),
		bid("imp1", 3.0, ""),
		bid("imp1", 2.0, ""),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.NotSame(t, response, result)
	assert.Len(t, result.Bids, 1)
	assert.Equal(t, 3.0, result.Bids[0].Bid.Price)
}

func TestRemoveRedundantBidsFirstMaxWinsOnPriceTie(t *testing.T) {
	first := bid("imp1", 2.0, "")
	second := bid("imp1", 2.0, "")
	response := givenResponse(first, second)

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Len(t, result.Bids, 1)
	assert.Same(t, first, result.Bids[0])
}

func TestRemoveRedundantBidsPrefersDealOverPrice(t *testing.T) {
	response := givenResponse(
		bid("imp1", 5.0, ""),
		bid("imp1", 2.0, "dealA"),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Len(t, result.Bids, 1)
	assert.Equal(t, "dealA", result.Bids[0].Bid.DealID)
	assert.Equal(t, 2.0, result.Bids[0].Bid.Price)
}

func TestRemoveRedundantBidsKeepsHighestPricedDeal(t *testing.T) {
	response := givenResponse(
		bid("imp1", 1.0, "dealA"),
		bid("imp1", 4.0, "dealB"),
		bid("imp1", 9.0, ""),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Len(t, result.Bids, 1)
	assert.Equal(t, "dealB", result.Bids[0].Bid.DealID)
}

func TestRemoveRedundantBidsBlankDealIdsFallBackToPrice(t *testing.T) {
	response := givenResponse(
		bid("imp1", 1.0, " "),
		bid("imp1", 4.0, ""),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Len(t, result.Bids, 1)
	assert.Equal(t, 4.0, result.Bids[0].Bid.Price)
}

func TestRemoveRedundantBidsAllBlankDealIdsKeepHighestPrice(t *testing.T) {
	response := givenResponse(
		bid("imp1", 2.0, " "),
		bid("imp1", 5.0, " "),
		bid("imp1", 1.0, ""),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Len(t, result.Bids, 1)
	assert.Equal(t, 5.0, result.Bids[0].Bid.Price)
}

func TestRemoveRedundantBidsPgTopDealWins(t *testing.T) {
	imp := openrtb.Imp{
		ID: "imp1",
		PMP: &openrtb.PMP{
			Deals: []openrtb.Deal{{ID: "d1"}, {ID: "d2"}},
		},
	}
	response := givenResponse(
		bid("imp1", 1.0, "d2"),
		bid("imp1", 2.0, "d1"),
		bid("imp1", 3.0, "d2"),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{imp})

	// d1 is found first in priority order, and only one bid carries it.
	assert.Len(t, result.Bids, 1)
	assert.Equal(t, "d1", result.Bids[0].Bid.DealID)
}

func TestRemoveRedundantBidsPgKeepsAllBidsOfTopDeal(t *testing.T) {
	imp := openrtb.Imp{
		ID: "imp1",
		PMP: &openrtb.PMP{
			Deals: []openrtb.Deal{{ID: "d1"}, {ID: "d2"}},
		},
	}
	response := givenResponse(
		bid("imp1", 1.0, "d2"),
		bid("imp1", 2.0, "d2"),
		bid("imp1", 3.0, "d3"),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{imp})

	assert.Len(t, result.Bids, 2)
	for _, kept := range result.Bids {
		assert.Equal(t, "d2", kept.Bid.DealID)
	}
}

func TestRemoveRedundantBidsPgNoMatchKeepsGroup(t *testing.T) {
	imp := openrtb.Imp{
		ID: "imp1",
		PMP: &openrtb.PMP{
			Deals: []openrtb.Deal{{ID: "d1"}},
		},
	}
	response := givenResponse(
		bid("imp1", 1.0, "d7"),
		bid("imp1", 2.0, "d8"),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{imp})

	assert.Same(t, response, result)
}

func TestRemoveRedundantBidsOrphansGroupTogether(t *testing.T) {
	// Bids referencing unknown imp ids share the nil group, so they reduce against
	// each other even when their imp ids differ.
	response := givenResponse(
		bid("ghost1", 1.0, ""),
		bid("ghost2", 5.0, ""),
	)

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Len(t, result.Bids, 1)
	assert.Equal(t, 5.0, result.Bids[0].Bid.Price)
}

func TestRemoveRedundantBidsPreservesAuxiliaryFields(t *testing.T) {
	response := givenResponse(
		bid("imp1", 1.0, ""),
		bid("imp1", 2.0, ""),
	)
	response.ResponseTimeMillis = 87
	response.Currency = "USD"

	result := RemoveRedundantBids(response, []openrtb.Imp{{ID: "imp1"}})

	assert.Equal(t, 87, result.ResponseTimeMillis)
	assert.Equal(t, "USD", result.Currency)
	assert.Equal(t, "someBidder", result.Bidder)
}

func givenResponse(bids ...*BidderBid) *BidderResponse {
	return &BidderResponse{
		Bidder: "someBidder",
		Bids:   bids,
	}
}

func bid(impID string, price float64, dealID string) *BidderBid {
	return &BidderBid{
		Bid: &openrtb.Bid{
			ImpID:  impID,
			Price:  price,
			DealID: dealID,
		},
		Type: "banner",
	}
}
