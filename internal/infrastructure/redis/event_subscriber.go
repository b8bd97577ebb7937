package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"marketplace-auction/internal/domain"
	"marketplace-auction/pkg/logger"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

func (s *RedisEventSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := s.client.Subscribe(ctx, AuctionEventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	s.log.Info("subscribed to auction events", "channel", AuctionEventsChannel)

	for {
		select {
		case msg := <-ch:
			var event domain.AuctionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.log.Error("failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(&event); err != nil {
				s.log.Error("failed to handle event",
					"type", string(event.Type), "auction_id", event.AuctionID, "error", err)
			}

		case <-ctx.Done():
			s.log.Info("event subscriber stopped")
			return ctx.Err()
		}
	}
}
