package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace-auction/internal/domain"
)

// AuctionStore is an in-process AuctionRepository. It mimics the
// document store's semantics: reads return detached copies and writes
// commit only when the stored version matches.
type AuctionStore struct {
	mu       sync.Mutex
	auctions map[string]*domain.Auction
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{auctions: make(map[string]*domain.Auction)}
}

func (s *AuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return fmt.Errorf("auction %s already exists", auction.ID)
	}
	s.auctions[auction.ID] = auction.Clone()
	return nil
}

func (s *AuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAuctionNotFound, auctionID)
	}
	return auction.Clone(), nil
}

func (s *AuctionStore) UpdateAuctionIfVersion(ctx context.Context, auction *domain.Auction, expectedVersion int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.auctions[auction.ID]
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrAuctionNotFound, auction.ID)
	}
	if stored.Version != expectedVersion {
		return false, nil
	}

	auction.Version = expectedVersion + 1
	s.auctions[auction.ID] = auction.Clone()
	return true, nil
}

func (s *AuctionStore) GetAuctionsDueForSettlement(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Auction
	for _, auction := range s.auctions {
		if auction.Status == domain.AuctionActive && !now.Before(auction.EndTime) {
			due = append(due, auction.Clone())
		}
	}
	return due, nil
}

func (s *AuctionStore) GetAuctionsDueToStart(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Auction
	for _, auction := range s.auctions {
		if auction.Status == domain.AuctionPending && !now.Before(auction.StartTime) && now.Before(auction.EndTime) {
			due = append(due, auction.Clone())
		}
	}
	return due, nil
}

// BidLedger is an in-process append-only ledger.
type BidLedger struct {
	mu      sync.Mutex
	records []*domain.BidRecord
}

func NewBidLedger() *BidLedger {
	return &BidLedger{}
}

func (l *BidLedger) AppendBid(ctx context.Context, record *domain.BidRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	dup := *record
	dup.CreatedAt = time.Now().UTC()
	l.records = append(l.records, &dup)
	return nil
}

func (l *BidLedger) MarkOutbid(ctx context.Context, bidID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, record := range l.records {
		if record.ID == bidID && record.Outcome == domain.BidAccepted {
			record.Outcome = domain.BidOutbid
			return nil
		}
	}
	return nil
}

func (l *BidLedger) GetBidByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*domain.BidRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, record := range l.records {
		if record.AuctionID == auctionID && record.BidderID == bidderID && record.IdempotencyKey == key && key != "" {
			dup := *record
			return &dup, nil
		}
	}
	return nil, domain.ErrBidNotFound
}

func (l *BidLedger) GetBidsForAuction(ctx context.Context, auctionID string) ([]*domain.BidRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.filter(func(r *domain.BidRecord) bool { return r.AuctionID == auctionID }), nil
}

func (l *BidLedger) GetBidsForBidder(ctx context.Context, bidderID string) ([]*domain.BidRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.filter(func(r *domain.BidRecord) bool { return r.BidderID == bidderID }), nil
}

func (l *BidLedger) filter(keep func(*domain.BidRecord) bool) []*domain.BidRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.BidRecord
	for _, record := range l.records {
		if keep(record) {
			dup := *record
			out = append(out, &dup)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out
}
