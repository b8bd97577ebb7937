package domain

import (
	"fmt"
	"time"
)

type AuctionStatus int

const (
	AuctionDraft AuctionStatus = iota
	AuctionPending
	AuctionActive
	AuctionEnded
	AuctionSold
	AuctionUnsold
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionDraft:
		return "draft"
	case AuctionPending:
		return "pending"
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	case AuctionSold:
		return "sold"
	case AuctionUnsold:
		return "unsold"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionSold || s == AuctionUnsold
}

// BidSnapshot is the accepted bid embedded in the auction document.
// BidID points at the matching ledger record so a superseding bid can
// mark exactly that record outbid.
type BidSnapshot struct {
	BidID    string    `json:"bid_id"`
	BidderID string    `json:"bidder_id"`
	Amount   float64   `json:"amount"`
	Time     time.Time `json:"time"`
}

type Auction struct {
	ID              string
	SellerID        string
	StartTime       time.Time
	EndTime         time.Time
	StartingBid     float64
	ReservePrice    float64
	IncrementAmount float64
	CurrentBid      *BidSnapshot
	BidHistory      []BidSnapshot
	Watchers        []string
	Status          AuctionStatus
	WinnerID        string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewAuction validates the auction parameters and returns an auction in
// pending or active state depending on where now falls in the window.
func NewAuction(id, sellerID string, startTime, endTime time.Time, startingBid, reservePrice, incrementAmount float64, now time.Time) (*Auction, error) {
	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller id is required", ErrInvalidAuction)
	}
	if !endTime.After(startTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidAuction)
	}
	if !endTime.After(now) {
		return nil, fmt.Errorf("%w: auction window is already past", ErrInvalidAuction)
	}
	if startingBid < 0 {
		return nil, fmt.Errorf("%w: starting bid must not be negative", ErrInvalidAuction)
	}
	if reservePrice < 0 {
		return nil, fmt.Errorf("%w: reserve price must not be negative", ErrInvalidAuction)
	}
	if incrementAmount <= 0 {
		return nil, fmt.Errorf("%w: increment amount must be positive", ErrInvalidAuction)
	}

	status := AuctionPending
	if !now.Before(startTime) {
		status = AuctionActive
	}

	return &Auction{
		ID:              id,
		SellerID:        sellerID,
		StartTime:       startTime.UTC(),
		EndTime:         endTime.UTC(),
		StartingBid:     startingBid,
		ReservePrice:    reservePrice,
		IncrementAmount: incrementAmount,
		Status:          status,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// OpenForBidding reports whether a bid can be considered at now.
func (a *Auction) OpenForBidding(now time.Time) bool {
	return a.Status == AuctionActive && !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// ValidateBid runs the acceptance preconditions in order; the first
// failure wins. It does not mutate the auction.
func (a *Auction) ValidateBid(bidderID string, amount float64, now time.Time) error {
	if a.Status.Terminal() {
		return ErrAuctionClosed
	}
	if a.Status == AuctionPending || now.Before(a.StartTime) {
		return fmt.Errorf("%w: bidding has not started", ErrAuctionNotOpen)
	}
	if !now.Before(a.EndTime) {
		return fmt.Errorf("%w: bidding has already ended", ErrAuctionNotOpen)
	}
	if a.Status != AuctionActive {
		return fmt.Errorf("%w: auction is not active", ErrAuctionNotOpen)
	}
	if bidderID == a.SellerID {
		return ErrSelfBidForbidden
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.CurrentBid == nil {
		if amount < a.StartingBid {
			return fmt.Errorf("%w: first bid must be at least %.2f", ErrBelowStartingBid, a.StartingBid)
		}
		return nil
	}
	if minimum := a.CurrentBid.Amount + a.IncrementAmount; amount < minimum {
		return fmt.Errorf("%w: minimum next bid is %.2f", ErrBidTooLow, minimum)
	}
	return nil
}

// ApplyBid records an already-validated bid as the new current bid.
func (a *Auction) ApplyBid(b BidSnapshot) {
	a.BidHistory = append(a.BidHistory, b)
	a.CurrentBid = &a.BidHistory[len(a.BidHistory)-1]
	a.UpdatedAt = b.Time
}

// Settle moves a past-end auction to its terminal state. It returns
// false when nothing is due: before the end time or already terminal.
func (a *Auction) Settle(now time.Time) bool {
	if a.Status.Terminal() || now.Before(a.EndTime) {
		return false
	}
	if a.CurrentBid != nil && a.CurrentBid.Amount >= a.ReservePrice {
		a.Status = AuctionSold
		a.WinnerID = a.CurrentBid.BidderID
	} else {
		a.Status = AuctionUnsold
	}
	a.UpdatedAt = now
	return true
}

// Activate promotes a pending auction whose start time has passed.
func (a *Auction) Activate(now time.Time) bool {
	if a.Status != AuctionPending || now.Before(a.StartTime) || !now.Before(a.EndTime) {
		return false
	}
	a.Status = AuctionActive
	a.UpdatedAt = now
	return true
}

// IsWatching reports whether userID is in the watcher set.
func (a *Auction) IsWatching(userID string) bool {
	for _, w := range a.Watchers {
		if w == userID {
			return true
		}
	}
	return false
}

// AddWatcher adds userID to the watcher set; returns false when already present.
func (a *Auction) AddWatcher(userID string) bool {
	if a.IsWatching(userID) {
		return false
	}
	a.Watchers = append(a.Watchers, userID)
	return true
}

// RemoveWatcher removes userID from the watcher set; returns false when absent.
func (a *Auction) RemoveWatcher(userID string) bool {
	for i, w := range a.Watchers {
		if w == userID {
			a.Watchers = append(a.Watchers[:i], a.Watchers[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate independently.
func (a *Auction) Clone() *Auction {
	dup := *a
	if a.BidHistory != nil {
		dup.BidHistory = make([]BidSnapshot, len(a.BidHistory))
		copy(dup.BidHistory, a.BidHistory)
	}
	if a.CurrentBid != nil {
		cb := *a.CurrentBid
		dup.CurrentBid = &cb
	}
	if a.Watchers != nil {
		dup.Watchers = make([]string, len(a.Watchers))
		copy(dup.Watchers, a.Watchers)
	}
	return &dup
}
