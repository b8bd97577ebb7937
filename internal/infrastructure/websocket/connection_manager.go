package websocket

import (
	"sync"

	"marketplace-auction/internal/domain"
	"marketplace-auction/pkg/logger"
)

// ConnectionManager indexes live watcher connections by auction and by
// user so engine events can be fanned out to everyone observing an
// auction or to a single bidder.
type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	cm.connections[auctionID][userID] = conn

	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Debug("watcher connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}

	if userConnections, exists := cm.userConns[userID]; exists {
		var remaining []domain.WebSocketConnection
		for _, existing := range userConnections {
			if existing.AuctionID() != auctionID {
				remaining = append(remaining, existing)
			}
		}

		if len(remaining) == 0 {
			delete(cm.userConns, userID)
		} else {
			cm.userConns[userID] = remaining
		}
	}

	cm.log.Debug("watcher connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	cm.mutex.RLock()
	conns := make([]domain.WebSocketConnection, 0, len(cm.connections[auctionID]))
	for _, conn := range cm.connections[auctionID] {
		conns = append(conns, conn)
	}
	cm.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(message); err != nil {
			cm.log.Warn("failed to send to watcher",
				"user_id", conn.UserID(), "auction_id", auctionID, "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	cm.mutex.RLock()
	conns := make([]domain.WebSocketConnection, len(cm.userConns[userID]))
	copy(conns, cm.userConns[userID])
	cm.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(message); err != nil {
			cm.log.Warn("failed to notify user", "user_id", userID, "error", err)
		}
	}
	return nil
}

// CloseAndUnregisterConnections drops every connection attached to an
// auction, used after the settlement broadcast.
func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionConns, exists := cm.connections[auctionID]
	if !exists {
		return nil
	}

	for userID, conn := range auctionConns {
		if err := conn.Close(); err != nil {
			cm.log.Warn("failed to close watcher connection",
				"user_id", userID, "auction_id", auctionID, "error", err)
		}

		if userConnections, ok := cm.userConns[userID]; ok {
			var remaining []domain.WebSocketConnection
			for _, existing := range userConnections {
				if existing.AuctionID() != auctionID {
					remaining = append(remaining, existing)
				}
			}
			if len(remaining) == 0 {
				delete(cm.userConns, userID)
			} else {
				cm.userConns[userID] = remaining
			}
		}
	}

	delete(cm.connections, auctionID)
	cm.log.Info("auction connections closed", "auction_id", auctionID)
	return nil
}
