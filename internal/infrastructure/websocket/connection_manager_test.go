package websocket

import (
	"sync"
	"testing"

	"marketplace-auction/pkg/logger"
)

// fakeConn captures sent messages instead of writing to a socket.
type fakeConn struct {
	mu        sync.Mutex
	userID    string
	auctionID string
	sent      []interface{}
	closed    bool
}

func newFakeConn(userID, auctionID string) *fakeConn {
	return &fakeConn{userID: userID, auctionID: auctionID}
}

func (c *fakeConn) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) UserID() string    { return c.userID }
func (c *fakeConn) AuctionID() string { return c.auctionID }

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestBroadcastToAuction(t *testing.T) {
	cm := NewConnectionManager(logger.Nop{})

	watcherA := newFakeConn("user-a", "auction-1")
	watcherB := newFakeConn("user-b", "auction-1")
	elsewhere := newFakeConn("user-c", "auction-2")
	cm.RegisterConnection("user-a", "auction-1", watcherA)
	cm.RegisterConnection("user-b", "auction-1", watcherB)
	cm.RegisterConnection("user-c", "auction-2", elsewhere)

	if err := cm.BroadcastToAuction("auction-1", "update"); err != nil {
		t.Fatalf("BroadcastToAuction() error = %v", err)
	}

	if watcherA.sentCount() != 1 || watcherB.sentCount() != 1 {
		t.Errorf("watchers received %d/%d messages, want 1/1", watcherA.sentCount(), watcherB.sentCount())
	}
	if elsewhere.sentCount() != 0 {
		t.Errorf("other auction's watcher received %d messages, want 0", elsewhere.sentCount())
	}

	// Broadcasting to an auction with no watchers is a no-op.
	if err := cm.BroadcastToAuction("auction-empty", "update"); err != nil {
		t.Errorf("BroadcastToAuction(empty) error = %v", err)
	}
}

func TestNotifyUser(t *testing.T) {
	cm := NewConnectionManager(logger.Nop{})

	// The same user watches two auctions; both connections get the notice.
	first := newFakeConn("user-a", "auction-1")
	second := newFakeConn("user-a", "auction-2")
	other := newFakeConn("user-b", "auction-1")
	cm.RegisterConnection("user-a", "auction-1", first)
	cm.RegisterConnection("user-a", "auction-2", second)
	cm.RegisterConnection("user-b", "auction-1", other)

	if err := cm.NotifyUser("user-a", "outbid"); err != nil {
		t.Fatalf("NotifyUser() error = %v", err)
	}

	if first.sentCount() != 1 || second.sentCount() != 1 {
		t.Errorf("user-a connections received %d/%d, want 1/1", first.sentCount(), second.sentCount())
	}
	if other.sentCount() != 0 {
		t.Errorf("user-b received %d messages, want 0", other.sentCount())
	}
}

func TestUnregisterConnection(t *testing.T) {
	cm := NewConnectionManager(logger.Nop{})

	conn := newFakeConn("user-a", "auction-1")
	keep := newFakeConn("user-a", "auction-2")
	cm.RegisterConnection("user-a", "auction-1", conn)
	cm.RegisterConnection("user-a", "auction-2", keep)

	if err := cm.UnregisterConnection("user-a", "auction-1"); err != nil {
		t.Fatalf("UnregisterConnection() error = %v", err)
	}

	cm.BroadcastToAuction("auction-1", "update")
	if conn.sentCount() != 0 {
		t.Error("unregistered connection still receives broadcasts")
	}

	cm.NotifyUser("user-a", "notice")
	if keep.sentCount() != 1 || conn.sentCount() != 0 {
		t.Errorf("user notices = %d/%d, want only the remaining connection", keep.sentCount(), conn.sentCount())
	}
}

func TestCloseAndUnregisterConnections(t *testing.T) {
	cm := NewConnectionManager(logger.Nop{})

	watcherA := newFakeConn("user-a", "auction-1")
	watcherB := newFakeConn("user-b", "auction-1")
	elsewhere := newFakeConn("user-a", "auction-2")
	cm.RegisterConnection("user-a", "auction-1", watcherA)
	cm.RegisterConnection("user-b", "auction-1", watcherB)
	cm.RegisterConnection("user-a", "auction-2", elsewhere)

	if err := cm.CloseAndUnregisterConnections("auction-1"); err != nil {
		t.Fatalf("CloseAndUnregisterConnections() error = %v", err)
	}

	if !watcherA.isClosed() || !watcherB.isClosed() {
		t.Error("auction-1 connections not closed")
	}
	if elsewhere.isClosed() {
		t.Error("auction-2 connection closed by auction-1 teardown")
	}

	cm.NotifyUser("user-a", "notice")
	if watcherA.sentCount() != 0 || elsewhere.sentCount() != 1 {
		t.Errorf("notices = %d/%d, want only the surviving connection", watcherA.sentCount(), elsewhere.sentCount())
	}
}
