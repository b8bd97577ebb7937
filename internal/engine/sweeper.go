package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"marketplace-auction/internal/clock"
	"marketplace-auction/internal/domain"
	"marketplace-auction/pkg/logger"
)

// Sweeper is the guaranteed settlement path: it periodically scans for
// auctions past their end time and asks the engine to settle them, and
// promotes pending auctions whose start time has passed. Settlement is
// idempotent under the conditional-write discipline, so overlapping
// sweeps from multiple instances are harmless; the leader gate only
// avoids wasted scans.
type Sweeper struct {
	engine     *Engine
	auctions   domain.AuctionRepository
	leader     domain.LeaderElection
	instanceID string
	interval   time.Duration
	cron       *cron.Cron
	clock      clock.Clock
	log        logger.Logger
}

func NewSweeper(
	eng *Engine,
	auctions domain.AuctionRepository,
	leader domain.LeaderElection,
	instanceID string,
	interval time.Duration,
	clk clock.Clock,
	log logger.Logger,
) *Sweeper {
	return &Sweeper{
		engine:     eng,
		auctions:   auctions,
		leader:     leader,
		instanceID: instanceID,
		interval:   interval,
		cron:       cron.New(cron.WithSeconds()),
		clock:      clk,
		log:        log,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.log.Info("starting settlement sweeper", "interval", s.interval.String())

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() error {
	s.log.Info("stopping settlement sweeper")
	s.cron.Stop()
	return nil
}

// Sweep runs one scan. Exported so an admin trigger or test can invoke
// it on demand.
func (s *Sweeper) Sweep(ctx context.Context) {
	isLeader, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("leadership check failed", "error", err)
		return
	}
	if !isLeader {
		return
	}

	now := s.clock.Now()
	s.activateDue(ctx, now)
	s.settleDue(ctx, now)
}

func (s *Sweeper) activateDue(ctx context.Context, now time.Time) {
	due, err := s.auctions.GetAuctionsDueToStart(ctx, now)
	if err != nil {
		s.log.Error("failed to scan startable auctions", "error", err)
		return
	}

	for _, auction := range due {
		if _, err := s.engine.ActivateIfDue(ctx, auction.ID); err != nil {
			s.log.Error("failed to activate auction", "auction_id", auction.ID, "error", err)
		}
	}
}

func (s *Sweeper) settleDue(ctx context.Context, now time.Time) {
	due, err := s.auctions.GetAuctionsDueForSettlement(ctx, now)
	if err != nil {
		s.log.Error("failed to scan due auctions", "error", err)
		return
	}

	for _, auction := range due {
		if _, err := s.engine.SettleIfDue(ctx, auction.ID); err != nil {
			// A conflicting writer settled it or will next pass.
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			s.log.Error("failed to settle auction", "auction_id", auction.ID, "error", err)
		}
	}
}
