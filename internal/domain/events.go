package domain

import "time"

type AuctionEventType string

const (
	EventBidAccepted    AuctionEventType = "bid_accepted"
	EventBidOutbid      AuctionEventType = "bid_outbid"
	EventAuctionSettled AuctionEventType = "auction_settled"
)

// AuctionEvent is published for the notifier to fan out; the engine
// never talks to watchers or bidders directly.
type AuctionEvent struct {
	Type             AuctionEventType `json:"type"`
	AuctionID        string           `json:"auction_id"`
	BidID            string           `json:"bid_id,omitempty"`
	BidderID         string           `json:"bidder_id,omitempty"`
	PreviousBidderID string           `json:"previous_bidder_id,omitempty"`
	Amount           float64          `json:"amount,omitempty"`
	Status           string           `json:"status,omitempty"`
	WinnerID         string           `json:"winner_id,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}
