package domain

import (
	"context"
	"time"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	// UpdateAuctionIfVersion persists the auction only if the stored
	// version still equals expectedVersion. On success the auction's
	// version is bumped to expectedVersion+1 and ok is true; ok is
	// false when another writer got there first.
	UpdateAuctionIfVersion(ctx context.Context, auction *Auction, expectedVersion int64) (bool, error)
	GetAuctionsDueForSettlement(ctx context.Context, now time.Time) ([]*Auction, error)
	GetAuctionsDueToStart(ctx context.Context, now time.Time) ([]*Auction, error)
}

type BidLedger interface {
	AppendBid(ctx context.Context, record *BidRecord) error
	// MarkOutbid flips an accepted record to outbid; any other
	// transition is a no-op.
	MarkOutbid(ctx context.Context, bidID string) error
	// GetBidByIdempotencyKey returns ErrBidNotFound when no accepted
	// bid carries the key for this auction and bidder.
	GetBidByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*BidRecord, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]*BidRecord, error)
	GetBidsForBidder(ctx context.Context, bidderID string) ([]*BidRecord, error)
}

// Event interfaces
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Notification interfaces
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID string, message interface{}) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
