package services

import (
	"context"
	"fmt"

	"marketplace-auction/internal/domain"
	"marketplace-auction/pkg/logger"
)

// EventListener consumes engine events and fans them out to watcher
// connections: bid updates broadcast to the auction, outbid and winner
// notices delivered to the affected users.
type EventListener struct {
	broadcaster       domain.AuctionBroadcaster
	userNotifier      domain.UserNotifier
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(broadcaster domain.AuctionBroadcaster, userNotifier domain.UserNotifier,
	connectionManager domain.ConnectionManager, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster:       broadcaster,
		userNotifier:      userNotifier,
		connectionManager: connectionManager,
		log:               log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, el.HandleAuctionEvent)
}

func (el *EventListener) HandleAuctionEvent(event *domain.AuctionEvent) error {
	el.log.Debug("handling auction event", "type", string(event.Type), "auction_id", event.AuctionID)

	switch event.Type {
	case domain.EventBidAccepted:
		return el.handleBidAccepted(event)
	case domain.EventBidOutbid:
		return el.handleBidOutbid(event)
	case domain.EventAuctionSettled:
		return el.handleAuctionSettled(event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleBidAccepted(event *domain.AuctionEvent) error {
	return el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
		"type":        "bid_update",
		"auction_id":  event.AuctionID,
		"current_bid": event.Amount,
		"bidder_id":   event.BidderID,
		"timestamp":   event.Timestamp,
	})
}

func (el *EventListener) handleBidOutbid(event *domain.AuctionEvent) error {
	return el.userNotifier.NotifyUser(context.Background(), event.PreviousBidderID, map[string]interface{}{
		"type":        "outbid",
		"auction_id":  event.AuctionID,
		"current_bid": event.Amount,
		"timestamp":   event.Timestamp,
	})
}

func (el *EventListener) handleAuctionSettled(event *domain.AuctionEvent) error {
	if err := el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
		"type":       "auction_settled",
		"auction_id": event.AuctionID,
		"status":     event.Status,
		"winner_id":  event.WinnerID,
		"timestamp":  event.Timestamp,
	}); err != nil {
		el.log.Error("failed to broadcast settlement", "auction_id", event.AuctionID, "error", err)
		return err
	}

	if event.WinnerID != "" {
		if err := el.userNotifier.NotifyUser(context.Background(), event.WinnerID, map[string]interface{}{
			"type":       "auction_won",
			"auction_id": event.AuctionID,
			"timestamp":  event.Timestamp,
		}); err != nil {
			el.log.Error("failed to notify winner",
				"auction_id", event.AuctionID, "winner_id", event.WinnerID, "error", err)
		}
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.AuctionID); err != nil {
		el.log.Error("failed to finalize connections",
			"auction_id", event.AuctionID, "error", err)
		return err
	}
	return nil
}
