package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"marketplace-auction/internal/domain"
)

// MySQLAuctionRepository persists auctions with JSON document columns
// for the bid snapshot, bid history and watcher set, and a version
// column driving the conditional update.
type MySQLAuctionRepository struct {
	db *sql.DB
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

const auctionColumns = `id, seller_id, start_time, end_time, starting_bid, reserve_price,
        increment_amount, current_bid, bid_history, watchers, status, winner_id,
        version, created_at, updated_at`

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	currentBid, bidHistory, watchers, err := marshalDocuments(auction)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = r.db.ExecContext(ctx, query,
		auction.ID, auction.SellerID, auction.StartTime, auction.EndTime,
		auction.StartingBid, auction.ReservePrice, auction.IncrementAmount,
		currentBid, bidHistory, watchers, int(auction.Status), auction.WinnerID,
		auction.Version, auction.CreatedAt, auction.UpdatedAt)
	return err
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAuctionNotFound, auctionID)
		}
		return nil, err
	}
	return auction, nil
}

func (r *MySQLAuctionRepository) UpdateAuctionIfVersion(ctx context.Context, auction *domain.Auction, expectedVersion int64) (bool, error) {
	currentBid, bidHistory, watchers, err := marshalDocuments(auction)
	if err != nil {
		return false, err
	}

	query := `
        UPDATE auctions
        SET current_bid = ?, bid_history = ?, watchers = ?, status = ?,
            winner_id = ?, end_time = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `
	result, err := r.db.ExecContext(ctx, query,
		currentBid, bidHistory, watchers, int(auction.Status),
		auction.WinnerID, auction.EndTime, auction.UpdatedAt,
		auction.ID, expectedVersion)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	auction.Version = expectedVersion + 1
	return true, nil
}

func (r *MySQLAuctionRepository) GetAuctionsDueForSettlement(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? AND end_time <= ?`
	return r.queryAuctions(ctx, query, int(domain.AuctionActive), now)
}

func (r *MySQLAuctionRepository) GetAuctionsDueToStart(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? AND start_time <= ? AND end_time > ?`
	return r.queryAuctions(ctx, query, int(domain.AuctionPending), now, now)
}

func (r *MySQLAuctionRepository) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]*domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		auction    domain.Auction
		status     int
		currentBid []byte
		bidHistory []byte
		watchers   []byte
	)

	err := row.Scan(
		&auction.ID, &auction.SellerID, &auction.StartTime, &auction.EndTime,
		&auction.StartingBid, &auction.ReservePrice, &auction.IncrementAmount,
		&currentBid, &bidHistory, &watchers, &status, &auction.WinnerID,
		&auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	if len(currentBid) > 0 {
		var snapshot domain.BidSnapshot
		if err := json.Unmarshal(currentBid, &snapshot); err != nil {
			return nil, err
		}
		auction.CurrentBid = &snapshot
	}
	if len(bidHistory) > 0 {
		if err := json.Unmarshal(bidHistory, &auction.BidHistory); err != nil {
			return nil, err
		}
	}
	if len(watchers) > 0 {
		if err := json.Unmarshal(watchers, &auction.Watchers); err != nil {
			return nil, err
		}
	}
	return &auction, nil
}

func marshalDocuments(auction *domain.Auction) (currentBid, bidHistory, watchers []byte, err error) {
	if auction.CurrentBid != nil {
		currentBid, err = json.Marshal(auction.CurrentBid)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	bidHistory, err = json.Marshal(auction.BidHistory)
	if err != nil {
		return nil, nil, nil, err
	}
	watchers, err = json.Marshal(auction.Watchers)
	if err != nil {
		return nil, nil, nil, err
	}
	return currentBid, bidHistory, watchers, nil
}
