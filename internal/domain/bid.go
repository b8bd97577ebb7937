package domain

import "time"

type BidOutcome string

const (
	BidAccepted BidOutcome = "accepted"
	BidRejected BidOutcome = "rejected"
	BidOutbid   BidOutcome = "outbid"
)

// BidRecord is an append-only ledger entry for a single bid attempt.
// The only mutation permitted after the fact is accepted -> outbid.
type BidRecord struct {
	ID             string
	AuctionID      string
	BidderID       string
	Amount         float64
	Outcome        BidOutcome
	Reason         string
	IdempotencyKey string
	PlacedAt       time.Time
	CreatedAt      time.Time
}
