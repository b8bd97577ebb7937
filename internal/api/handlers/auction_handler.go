package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"marketplace-auction/internal/domain"
	"marketplace-auction/internal/engine"
	"marketplace-auction/pkg/logger"
)

type AuctionHandler struct {
	engine *engine.Engine
	log    logger.Logger
}

func NewAuctionHandler(eng *engine.Engine, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		engine: eng,
		log:    log,
	}
}

// Register mounts the auction routes onto an echo group.
func (h *AuctionHandler) Register(api *echo.Group) {
	api.POST("/auctions", h.CreateAuction)
	api.GET("/auctions/:id", h.GetAuction)
	api.POST("/auctions/:id/bids", h.PlaceBid)
	api.GET("/auctions/:id/bids", h.GetAuctionBids)
	api.PUT("/auctions/:id/watch", h.Watch)
	api.PUT("/auctions/:id/unwatch", h.Unwatch)
	api.POST("/auctions/:id/settle", h.Settle)
	api.GET("/bidders/:id/bids", h.GetBidderBids)
}

type CreateAuctionRequest struct {
	SellerID        string    `json:"seller_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	StartingBid     float64   `json:"starting_bid"`
	ReservePrice    float64   `json:"reserve_price"`
	IncrementAmount float64   `json:"increment_amount"`
}

type PlaceBidRequest struct {
	BidderID       string  `json:"bidder_id"`
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

type WatchRequest struct {
	UserID string `json:"user_id"`
}

type AuctionResponse struct {
	AuctionID       string              `json:"auction_id"`
	SellerID        string              `json:"seller_id"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	StartingBid     float64             `json:"starting_bid"`
	ReservePrice    float64             `json:"reserve_price"`
	IncrementAmount float64             `json:"increment_amount"`
	CurrentBid      *domain.BidSnapshot `json:"current_bid,omitempty"`
	BidCount        int                 `json:"bid_count"`
	Status          string              `json:"status"`
	WinnerID        string              `json:"winner_id,omitempty"`
	Version         int64               `json:"version"`
}

type BidResponse struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	PlacedAt  time.Time `json:"placed_at"`
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	auction, err := h.engine.CreateAuction(c.Request().Context(), engine.CreateAuctionParams{
		SellerID:        req.SellerID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		StartingBid:     req.StartingBid,
		ReservePrice:    req.ReservePrice,
		IncrementAmount: req.IncrementAmount,
	})
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}

	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.engine.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	auction, bid, err := h.engine.PlaceBid(c.Request().Context(), c.Param("id"), req.BidderID, req.Amount, key)
	if err != nil {
		body := map[string]interface{}{"error": err.Error()}
		if bid != nil {
			body["bid"] = toBidResponse(bid)
		}
		return c.JSON(statusFor(err), body)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"auction": toAuctionResponse(auction),
		"bid":     toBidResponse(bid),
	})
}

func (h *AuctionHandler) GetAuctionBids(c echo.Context) error {
	records, err := h.engine.GetBidsForAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, toBidResponses(records))
}

func (h *AuctionHandler) GetBidderBids(c echo.Context) error {
	records, err := h.engine.GetBidsForBidder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, toBidResponses(records))
}

func (h *AuctionHandler) Watch(c echo.Context) error {
	return h.toggleWatch(c, true)
}

func (h *AuctionHandler) Unwatch(c echo.Context) error {
	return h.toggleWatch(c, false)
}

func (h *AuctionHandler) toggleWatch(c echo.Context, watching bool) error {
	var req WatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("user_id required"))
	}

	var (
		isWatching bool
		err        error
	)
	if watching {
		isWatching, err = h.engine.Watch(c.Request().Context(), c.Param("id"), req.UserID)
	} else {
		isWatching, err = h.engine.Unwatch(c.Request().Context(), c.Param("id"), req.UserID)
	}
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}

	return c.JSON(http.StatusOK, map[string]bool{"is_watching": isWatching})
}

// Settle triggers settlement on demand; the sweeper covers the same
// transition in the background.
func (h *AuctionHandler) Settle(c echo.Context) error {
	auction, err := h.engine.SettleIfDue(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(statusFor(err), errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func toAuctionResponse(a *domain.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:       a.ID,
		SellerID:        a.SellerID,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		StartingBid:     a.StartingBid,
		ReservePrice:    a.ReservePrice,
		IncrementAmount: a.IncrementAmount,
		CurrentBid:      a.CurrentBid,
		BidCount:        len(a.BidHistory),
		Status:          a.Status.String(),
		WinnerID:        a.WinnerID,
		Version:         a.Version,
	}
}

func toBidResponse(r *domain.BidRecord) BidResponse {
	return BidResponse{
		BidID:     r.ID,
		AuctionID: r.AuctionID,
		BidderID:  r.BidderID,
		Amount:    r.Amount,
		Outcome:   string(r.Outcome),
		Reason:    r.Reason,
		PlacedAt:  r.PlacedAt,
	}
}

func toBidResponses(records []*domain.BidRecord) []BidResponse {
	out := make([]BidResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toBidResponse(r))
	}
	return out
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSelfBidForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAuctionNotOpen), errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrAuctionClosed),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrBelowStartingBid),
		errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrInvalidAuction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
