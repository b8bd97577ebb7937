package domain

import "errors"

var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotOpen   = errors.New("auction not open for bidding")
	ErrAuctionClosed    = errors.New("auction is closed")
	ErrSelfBidForbidden = errors.New("seller cannot bid on own auction")
	ErrInvalidAmount    = errors.New("bid amount must be positive")
	ErrBelowStartingBid = errors.New("bid below starting bid")
	ErrBidTooLow        = errors.New("bid below required increment")
	ErrVersionConflict  = errors.New("concurrent update conflict")
	ErrUnavailable      = errors.New("persistence unavailable")
	ErrInvalidAuction   = errors.New("invalid auction parameters")
	ErrBidNotFound      = errors.New("bid not found")
)

// RejectionReason maps a validation error to the reason recorded on the
// bid ledger entry.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrAuctionNotOpen):
		return "auction_not_open"
	case errors.Is(err, ErrSelfBidForbidden):
		return "self_bid_forbidden"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrBelowStartingBid):
		return "below_starting_bid"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	default:
		return "rejected"
	}
}
