package services

import (
	"context"
	"testing"
	"time"

	"marketplace-auction/internal/domain"
	"marketplace-auction/pkg/logger"
)

type fakeBroadcaster struct {
	auctionIDs []string
	messages   []map[string]interface{}
}

func (b *fakeBroadcaster) BroadcastToAuction(_ context.Context, auctionID string, message interface{}) error {
	b.auctionIDs = append(b.auctionIDs, auctionID)
	b.messages = append(b.messages, message.(map[string]interface{}))
	return nil
}

type fakeNotifier struct {
	userIDs  []string
	messages []map[string]interface{}
}

func (n *fakeNotifier) NotifyUser(_ context.Context, userID string, message interface{}) error {
	n.userIDs = append(n.userIDs, userID)
	n.messages = append(n.messages, message.(map[string]interface{}))
	return nil
}

type fakeConnManager struct {
	closedAuctions []string
}

func (m *fakeConnManager) RegisterConnection(string, string, domain.WebSocketConnection) error {
	return nil
}
func (m *fakeConnManager) UnregisterConnection(string, string) error    { return nil }
func (m *fakeConnManager) BroadcastToAuction(string, interface{}) error { return nil }
func (m *fakeConnManager) NotifyUser(string, interface{}) error         { return nil }
func (m *fakeConnManager) CloseAndUnregisterConnections(auctionID string) error {
	m.closedAuctions = append(m.closedAuctions, auctionID)
	return nil
}

func newListener() (*EventListener, *fakeBroadcaster, *fakeNotifier, *fakeConnManager) {
	broadcaster := &fakeBroadcaster{}
	notifier := &fakeNotifier{}
	connManager := &fakeConnManager{}
	return NewEventListener(broadcaster, notifier, connManager, logger.Nop{}), broadcaster, notifier, connManager
}

func TestHandleBidAccepted(t *testing.T) {
	listener, broadcaster, notifier, _ := newListener()

	err := listener.HandleAuctionEvent(&domain.AuctionEvent{
		Type:      domain.EventBidAccepted,
		AuctionID: "auction-1",
		BidderID:  "bidder-1",
		Amount:    1100,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("HandleAuctionEvent() error = %v", err)
	}

	if len(broadcaster.auctionIDs) != 1 || broadcaster.auctionIDs[0] != "auction-1" {
		t.Fatalf("broadcasts = %v, want one to auction-1", broadcaster.auctionIDs)
	}
	msg := broadcaster.messages[0]
	if msg["type"] != "bid_update" || msg["current_bid"] != 1100.0 {
		t.Errorf("broadcast message = %v, want bid_update at 1100", msg)
	}
	if len(notifier.userIDs) != 0 {
		t.Errorf("user notices = %v, want none for an accepted bid", notifier.userIDs)
	}
}

func TestHandleBidOutbid(t *testing.T) {
	listener, broadcaster, notifier, _ := newListener()

	err := listener.HandleAuctionEvent(&domain.AuctionEvent{
		Type:             domain.EventBidOutbid,
		AuctionID:        "auction-1",
		PreviousBidderID: "bidder-a",
		Amount:           1200,
	})
	if err != nil {
		t.Fatalf("HandleAuctionEvent() error = %v", err)
	}

	if len(notifier.userIDs) != 1 || notifier.userIDs[0] != "bidder-a" {
		t.Fatalf("notices = %v, want one to the outbid bidder", notifier.userIDs)
	}
	if notifier.messages[0]["type"] != "outbid" {
		t.Errorf("notice type = %v, want outbid", notifier.messages[0]["type"])
	}
	if len(broadcaster.auctionIDs) != 0 {
		t.Errorf("broadcasts = %v, want none for an outbid notice", broadcaster.auctionIDs)
	}
}

func TestHandleAuctionSettled(t *testing.T) {
	t.Run("sold notifies winner and closes connections", func(t *testing.T) {
		listener, broadcaster, notifier, connManager := newListener()

		err := listener.HandleAuctionEvent(&domain.AuctionEvent{
			Type:      domain.EventAuctionSettled,
			AuctionID: "auction-1",
			Status:    "sold",
			WinnerID:  "bidder-1",
		})
		if err != nil {
			t.Fatalf("HandleAuctionEvent() error = %v", err)
		}

		if len(broadcaster.messages) != 1 || broadcaster.messages[0]["type"] != "auction_settled" {
			t.Errorf("broadcasts = %v, want one auction_settled", broadcaster.messages)
		}
		if len(notifier.userIDs) != 1 || notifier.userIDs[0] != "bidder-1" {
			t.Errorf("notices = %v, want auction_won to bidder-1", notifier.userIDs)
		}
		if notifier.messages[0]["type"] != "auction_won" {
			t.Errorf("notice type = %v, want auction_won", notifier.messages[0]["type"])
		}
		if len(connManager.closedAuctions) != 1 || connManager.closedAuctions[0] != "auction-1" {
			t.Errorf("closed auctions = %v, want auction-1", connManager.closedAuctions)
		}
	})

	t.Run("unsold skips the winner notice", func(t *testing.T) {
		listener, _, notifier, connManager := newListener()

		err := listener.HandleAuctionEvent(&domain.AuctionEvent{
			Type:      domain.EventAuctionSettled,
			AuctionID: "auction-2",
			Status:    "unsold",
		})
		if err != nil {
			t.Fatalf("HandleAuctionEvent() error = %v", err)
		}

		if len(notifier.userIDs) != 0 {
			t.Errorf("notices = %v, want none when unsold", notifier.userIDs)
		}
		if len(connManager.closedAuctions) != 1 {
			t.Errorf("closed auctions = %v, want the settled auction", connManager.closedAuctions)
		}
	})
}

func TestHandleUnknownEventType(t *testing.T) {
	listener, _, _, _ := newListener()

	if err := listener.HandleAuctionEvent(&domain.AuctionEvent{Type: "mystery"}); err == nil {
		t.Error("HandleAuctionEvent(unknown) error = nil, want error")
	}
}
