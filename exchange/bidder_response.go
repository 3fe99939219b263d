package exchange

import (
	"github.com/mxmCherry/openrtb"
)

// BidderBid wraps an OpenRTB bid together with the media type the adapter declared for it.
type BidderBid struct {
	Bid  *openrtb.Bid
	Type string
}

// BidderResponse is the result set one bidder returned for an auction. The auxiliary
// fields ride along untouched through any reduction.
type BidderResponse struct {
	Bidder             string
	Bids               []*BidderBid
	Currency           string
	ResponseTimeMillis int
	Errors             []error
}
