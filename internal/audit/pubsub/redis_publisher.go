package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ChannelPoolBroadcast é o canal Redis Pub/Sub que alimenta o WS do
// odds-feed-service.
const ChannelPoolBroadcast = "pool_updates_broadcast"

type RedisBroadcaster struct {
	r *redis.Client
}

func NewRedisBroadcaster(r *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.r.Publish(ctx, channel, payload).Err()
}

// Payload padrão para o WS do odds-feed-service
type WSUpdate struct {
	EventID string      `json:"eventId"`
	Kind    string      `json:"kind"` // BET_PLACED | EVENT_SETTLED
	Payload interface{} `json:"payload"`
}
