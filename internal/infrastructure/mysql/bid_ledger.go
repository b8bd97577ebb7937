package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace-auction/internal/domain"
)

// MySQLBidLedger is the append-only bid attempt log. The only UPDATE it
// ever issues flips an accepted record to outbid.
type MySQLBidLedger struct {
	db *sql.DB
}

func NewMySQLBidLedger(db *sql.DB) *MySQLBidLedger {
	return &MySQLBidLedger{db: db}
}

func (l *MySQLBidLedger) AppendBid(ctx context.Context, record *domain.BidRecord) error {
	query := `
        INSERT INTO bids (id, auction_id, bidder_id, amount, outcome, reason, idempotency_key, placed_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	var key sql.NullString
	if record.IdempotencyKey != "" {
		key = sql.NullString{String: record.IdempotencyKey, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, query,
		record.ID, record.AuctionID, record.BidderID, record.Amount,
		string(record.Outcome), record.Reason, key, record.PlacedAt, time.Now().UTC())
	return err
}

func (l *MySQLBidLedger) MarkOutbid(ctx context.Context, bidID string) error {
	query := `UPDATE bids SET outcome = ? WHERE id = ? AND outcome = ?`
	_, err := l.db.ExecContext(ctx, query, string(domain.BidOutbid), bidID, string(domain.BidAccepted))
	return err
}

func (l *MySQLBidLedger) GetBidByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*domain.BidRecord, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, outcome, reason, idempotency_key, placed_at, created_at
        FROM bids
        WHERE auction_id = ? AND bidder_id = ? AND idempotency_key = ?
    `
	record, err := scanBid(l.db.QueryRowContext(ctx, query, auctionID, bidderID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: key %s", domain.ErrBidNotFound, key)
		}
		return nil, err
	}
	return record, nil
}

func (l *MySQLBidLedger) GetBidsForAuction(ctx context.Context, auctionID string) ([]*domain.BidRecord, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, outcome, reason, idempotency_key, placed_at, created_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY placed_at ASC, created_at ASC
    `
	return l.queryBids(ctx, query, auctionID)
}

func (l *MySQLBidLedger) GetBidsForBidder(ctx context.Context, bidderID string) ([]*domain.BidRecord, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, outcome, reason, idempotency_key, placed_at, created_at
        FROM bids
        WHERE bidder_id = ?
        ORDER BY placed_at ASC, created_at ASC
    `
	return l.queryBids(ctx, query, bidderID)
}

func (l *MySQLBidLedger) queryBids(ctx context.Context, query string, args ...interface{}) ([]*domain.BidRecord, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.BidRecord
	for rows.Next() {
		record, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanBid(row rowScanner) (*domain.BidRecord, error) {
	var (
		record  domain.BidRecord
		outcome string
		key     sql.NullString
	)

	err := row.Scan(&record.ID, &record.AuctionID, &record.BidderID, &record.Amount,
		&outcome, &record.Reason, &key, &record.PlacedAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	record.Outcome = domain.BidOutcome(outcome)
	if key.Valid {
		record.IdempotencyKey = key.String
	}
	return &record, nil
}
