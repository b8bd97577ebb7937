package engine

import (
	"context"
	"errors"
	"time"

	"marketplace-auction/internal/clock"
	"marketplace-auction/internal/domain"
	"marketplace-auction/pkg/logger"
	"marketplace-auction/pkg/utils"
)

const (
	// DefaultMaxRetries bounds the optimistic-concurrency retry loop.
	DefaultMaxRetries = 3
	// DefaultOpTimeout bounds every persistence round-trip.
	DefaultOpTimeout = 5 * time.Second
)

// Engine owns the auction state machine: it validates and applies bids,
// computes settlement, and emits events for the notifier to fan out.
// All auction writes go through the repository's conditional update, so
// concurrent bidders and the sweeper serialize on the version counter.
type Engine struct {
	auctions   domain.AuctionRepository
	ledger     domain.BidLedger
	events     domain.EventPublisher
	clock      clock.Clock
	maxRetries int
	opTimeout  time.Duration
	log        logger.Logger
}

func NewEngine(
	auctions domain.AuctionRepository,
	ledger domain.BidLedger,
	events domain.EventPublisher,
	clk clock.Clock,
	maxRetries int,
	opTimeout time.Duration,
	log logger.Logger,
) *Engine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &Engine{
		auctions:   auctions,
		ledger:     ledger,
		events:     events,
		clock:      clk,
		maxRetries: maxRetries,
		opTimeout:  opTimeout,
		log:        log,
	}
}

type CreateAuctionParams struct {
	SellerID        string
	StartTime       time.Time
	EndTime         time.Time
	StartingBid     float64
	ReservePrice    float64
	IncrementAmount float64
}

// CreateAuction validates the parameters and persists a new auction.
func (e *Engine) CreateAuction(ctx context.Context, p CreateAuctionParams) (*domain.Auction, error) {
	auction, err := domain.NewAuction(
		utils.GenerateID("auction"),
		p.SellerID, p.StartTime, p.EndTime,
		p.StartingBid, p.ReservePrice, p.IncrementAmount,
		e.clock.Now(),
	)
	if err != nil {
		return nil, err
	}

	if err := e.createAuction(ctx, auction); err != nil {
		return nil, err
	}

	e.log.Info("auction created",
		"auction_id", auction.ID,
		"seller_id", auction.SellerID,
		"status", auction.Status.String(),
		"end_time", auction.EndTime)
	return auction, nil
}

// GetAuction returns the auction, settling it first when its end time
// has passed. The sweeper remains the guaranteed settlement path; this
// read-side check just keeps responses consistent.
func (e *Engine) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	auction, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !auction.Status.Terminal() && !e.clock.Now().Before(auction.EndTime) {
		return e.SettleIfDue(ctx, auctionID)
	}
	return auction, nil
}

// PlaceBid validates and applies a bid under the conditional-write
// discipline. Every attempt yields either a committed acceptance or an
// error; validation failures are additionally recorded on the ledger.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64, idempotencyKey string) (*domain.Auction, *domain.BidRecord, error) {
	if idempotencyKey != "" {
		if record, err := e.findByIdempotencyKey(ctx, auctionID, bidderID, idempotencyKey); err != nil {
			return nil, nil, err
		} else if record != nil {
			auction, err := e.getAuction(ctx, auctionID)
			if err != nil {
				return nil, nil, err
			}
			e.log.Info("bid replayed from idempotency key",
				"auction_id", auctionID, "bidder_id", bidderID, "bid_id", record.ID)
			return auction, record, nil
		}
	}

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		auction, err := e.getAuction(ctx, auctionID)
		if err != nil {
			return nil, nil, err
		}
		now := e.clock.Now()

		// Reaching the start time opens the auction; a bid arriving
		// before the sweeper promoted the row activates it itself, on
		// the same conditional write that commits the bid.
		next := auction.Clone()
		next.Activate(now)

		if err := next.ValidateBid(bidderID, amount, now); err != nil {
			// A bid observing the end of the window settles the
			// auction before the rejection goes back.
			if !auction.Status.Terminal() && !now.Before(auction.EndTime) {
				if settled, serr := e.SettleIfDue(ctx, auctionID); serr != nil {
					e.log.Error("settlement on late bid failed",
						"auction_id", auctionID, "error", serr)
				} else {
					auction = settled
				}
			}
			record := e.recordRejection(ctx, auction, bidderID, amount, err, now)
			return auction, record, err
		}

		snapshot := domain.BidSnapshot{
			BidID:    utils.GenerateID("bid"),
			BidderID: bidderID,
			Amount:   amount,
			Time:     now,
		}
		previous := auction.CurrentBid
		next.ApplyBid(snapshot)

		ok, err := e.updateAuction(ctx, next, auction.Version)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			e.log.Debug("bid lost version race, revalidating",
				"auction_id", auctionID, "bidder_id", bidderID, "attempt", attempt+1)
			continue
		}

		record := &domain.BidRecord{
			ID:             snapshot.BidID,
			AuctionID:      auctionID,
			BidderID:       bidderID,
			Amount:         amount,
			Outcome:        domain.BidAccepted,
			IdempotencyKey: idempotencyKey,
			PlacedAt:       now,
		}
		e.appendLedger(ctx, record)

		e.publish(ctx, &domain.AuctionEvent{
			Type:      domain.EventBidAccepted,
			AuctionID: auctionID,
			BidID:     record.ID,
			BidderID:  bidderID,
			Amount:    amount,
			Timestamp: now,
		})

		if previous != nil {
			e.markOutbid(ctx, previous.BidID)
			e.publish(ctx, &domain.AuctionEvent{
				Type:             domain.EventBidOutbid,
				AuctionID:        auctionID,
				BidID:            previous.BidID,
				PreviousBidderID: previous.BidderID,
				Amount:           amount,
				Timestamp:        now,
			})
		}

		e.log.Info("bid accepted",
			"auction_id", auctionID, "bidder_id", bidderID,
			"amount", amount, "version", next.Version)
		return next, record, nil
	}

	return nil, nil, domain.ErrVersionConflict
}

// SettleIfDue transitions a past-end auction to sold or unsold. It is a
// no-op when the auction is already terminal or not yet due, and is
// safe to invoke concurrently from bids, reads and multiple sweepers.
func (e *Engine) SettleIfDue(ctx context.Context, auctionID string) (*domain.Auction, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		auction, err := e.getAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		now := e.clock.Now()

		next := auction.Clone()
		if !next.Settle(now) {
			return auction, nil
		}

		ok, err := e.updateAuction(ctx, next, auction.Version)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		e.publish(ctx, &domain.AuctionEvent{
			Type:      domain.EventAuctionSettled,
			AuctionID: auctionID,
			Status:    next.Status.String(),
			WinnerID:  next.WinnerID,
			Timestamp: now,
		})

		e.log.Info("auction settled",
			"auction_id", auctionID,
			"status", next.Status.String(),
			"winner_id", next.WinnerID)
		return next, nil
	}
	return nil, domain.ErrVersionConflict
}

// ActivateIfDue promotes a pending auction once its start time passes.
func (e *Engine) ActivateIfDue(ctx context.Context, auctionID string) (*domain.Auction, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		auction, err := e.getAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		next := auction.Clone()
		if !next.Activate(e.clock.Now()) {
			return auction, nil
		}

		ok, err := e.updateAuction(ctx, next, auction.Version)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		e.log.Info("auction activated", "auction_id", auctionID)
		return next, nil
	}
	return nil, domain.ErrVersionConflict
}

// Watch adds userID to the auction's watcher set and reports the
// resulting membership. Redundant toggles return without writing.
func (e *Engine) Watch(ctx context.Context, auctionID, userID string) (bool, error) {
	return e.toggleWatch(ctx, auctionID, userID, true)
}

// Unwatch removes userID from the auction's watcher set.
func (e *Engine) Unwatch(ctx context.Context, auctionID, userID string) (bool, error) {
	return e.toggleWatch(ctx, auctionID, userID, false)
}

func (e *Engine) toggleWatch(ctx context.Context, auctionID, userID string, watching bool) (bool, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		auction, err := e.getAuction(ctx, auctionID)
		if err != nil {
			return false, err
		}
		// Settled auctions are immutable; report membership as stored.
		if auction.Status.Terminal() || auction.IsWatching(userID) == watching {
			return auction.IsWatching(userID), nil
		}

		next := auction.Clone()
		if watching {
			next.AddWatcher(userID)
		} else {
			next.RemoveWatcher(userID)
		}

		ok, err := e.updateAuction(ctx, next, auction.Version)
		if err != nil {
			return false, err
		}
		if ok {
			return watching, nil
		}
	}
	return false, domain.ErrVersionConflict
}

// GetBidsForAuction returns the chronological ledger for an auction.
func (e *Engine) GetBidsForAuction(ctx context.Context, auctionID string) ([]*domain.BidRecord, error) {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	records, err := e.ledger.GetBidsForAuction(tctx, auctionID)
	return records, e.mapStoreError(err)
}

// GetBidsForBidder returns a bidder's cross-auction ledger history.
func (e *Engine) GetBidsForBidder(ctx context.Context, bidderID string) ([]*domain.BidRecord, error) {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	records, err := e.ledger.GetBidsForBidder(tctx, bidderID)
	return records, e.mapStoreError(err)
}

func (e *Engine) createAuction(ctx context.Context, auction *domain.Auction) error {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.mapStoreError(e.auctions.CreateAuction(tctx, auction))
}

func (e *Engine) getAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	auction, err := e.auctions.GetAuction(tctx, auctionID)
	if err != nil {
		return nil, e.mapStoreError(err)
	}
	return auction, nil
}

func (e *Engine) updateAuction(ctx context.Context, auction *domain.Auction, expectedVersion int64) (bool, error) {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	ok, err := e.auctions.UpdateAuctionIfVersion(tctx, auction, expectedVersion)
	if err != nil {
		return false, e.mapStoreError(err)
	}
	return ok, nil
}

func (e *Engine) findByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*domain.BidRecord, error) {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	record, err := e.ledger.GetBidByIdempotencyKey(tctx, auctionID, bidderID, key)
	if err != nil {
		if errors.Is(err, domain.ErrBidNotFound) {
			return nil, nil
		}
		return nil, e.mapStoreError(err)
	}
	return record, nil
}

// recordRejection appends a rejected attempt to the ledger. The bid has
// already been refused, so ledger failures are logged, not surfaced.
func (e *Engine) recordRejection(ctx context.Context, auction *domain.Auction, bidderID string, amount float64, cause error, now time.Time) *domain.BidRecord {
	record := &domain.BidRecord{
		ID:        utils.GenerateID("bid"),
		AuctionID: auction.ID,
		BidderID:  bidderID,
		Amount:    amount,
		Outcome:   domain.BidRejected,
		Reason:    domain.RejectionReason(cause),
		PlacedAt:  now,
	}
	e.appendLedger(ctx, record)
	e.log.Info("bid rejected",
		"auction_id", auction.ID, "bidder_id", bidderID,
		"amount", amount, "reason", record.Reason)
	return record
}

func (e *Engine) appendLedger(ctx context.Context, record *domain.BidRecord) {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	if err := e.ledger.AppendBid(tctx, record); err != nil {
		e.log.Error("failed to append ledger record",
			"auction_id", record.AuctionID, "bid_id", record.ID, "error", err)
	}
}

func (e *Engine) markOutbid(ctx context.Context, bidID string) {
	tctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	if err := e.ledger.MarkOutbid(tctx, bidID); err != nil {
		e.log.Error("failed to mark ledger record outbid", "bid_id", bidID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, event *domain.AuctionEvent) {
	if err := e.events.PublishAuctionEvent(ctx, event); err != nil {
		e.log.Error("failed to publish event",
			"type", string(event.Type), "auction_id", event.AuctionID, "error", err)
	}
}

// mapStoreError folds persistence timeouts into ErrUnavailable so
// callers know the attempt had no partial effect and may retry.
func (e *Engine) mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrUnavailable
	}
	return err
}
