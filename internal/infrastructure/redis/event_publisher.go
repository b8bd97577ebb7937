package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"marketplace-auction/internal/domain"
)

// AuctionEventsChannel carries engine events to notifier instances.
const AuctionEventsChannel = "auction_events"

type RedisEventPublisher struct {
	client *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

func (p *RedisEventPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, AuctionEventsChannel, payload).Err()
}
