package handlers

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"marketplace-auction/internal/domain"
	"marketplace-auction/internal/engine"
	"marketplace-auction/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler attaches watchers to an auction's live feed. The
// connection only receives engine events; bids go through the REST API.
type WebSocketHandler struct {
	engine      *engine.Engine
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(eng *engine.Engine, connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		engine:      eng,
		connManager: connManager,
		log:         log,
	}
}

func (h *WebSocketHandler) HandleConnection(c echo.Context) error {
	auctionID := c.Param("id")

	auction, err := h.engine.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	if auction.Status.Terminal() {
		return c.JSON(http.StatusConflict, errorBody("auction has already settled"))
	}

	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("user_id required"))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", "auction_id", auctionID, "error", err)
		return nil
	}

	wsConn := NewWatcherConnection(conn, userID, auctionID)

	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("failed to register connection", "auction_id", auctionID, "error", err)
		conn.Close()
		return nil
	}

	go h.readLoop(wsConn, userID, auctionID)
	return nil
}

// readLoop keeps the connection alive and detects client disconnects;
// watchers never push state changes over the socket.
func (h *WebSocketHandler) readLoop(conn *WatcherConnection, userID, auctionID string) {
	defer func() {
		h.connManager.UnregisterConnection(userID, auctionID)
		conn.Close()
	}()

	for {
		var msg map[string]interface{}
		if err := conn.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msgType, ok := msg["type"].(string); ok && msgType == "ping" {
			conn.Send(map[string]string{"type": "pong"})
		}
	}
}

type WatcherConnection struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	userID    string
	auctionID string
}

func NewWatcherConnection(conn *websocket.Conn, userID, auctionID string) *WatcherConnection {
	return &WatcherConnection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

// Send serializes writers: gorilla connections allow one concurrent
// writer, and broadcasts race the read loop's pong replies here.
func (wc *WatcherConnection) Send(message interface{}) error {
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	return wc.conn.WriteJSON(message)
}

func (wc *WatcherConnection) Close() error {
	return wc.conn.Close()
}

func (wc *WatcherConnection) UserID() string {
	return wc.userID
}

func (wc *WatcherConnection) AuctionID() string {
	return wc.auctionID
}
