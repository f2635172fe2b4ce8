package oddscache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache encapsula o cache Redis das odds correntes por evento.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(c *redis.Client, ttl time.Duration) *Cache {
	return &Cache{Client: c, TTL: ttl}
}

// Snapshot é o payload cacheado por evento.
type Snapshot struct {
	EventID     uint64 `json:"event_id"`
	OddsA       int64  `json:"odds_a"`
	OddsB       int64  `json:"odds_b"`
	TotalACents int64  `json:"total_a_cents"`
	TotalBCents int64  `json:"total_b_cents"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// key gera a chave Redis das odds correntes de um evento
func key(eventID uint64) string { return "odds:current:" + strconv.FormatUint(eventID, 10) }

// SetCurrent armazena o snapshot de odds de um evento com TTL definido.
func (c *Cache) SetCurrent(ctx context.Context, s Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key(s.EventID), b, c.TTL).Err()
}

// GetCurrent lê o snapshot cacheado; ok == false em cache miss.
func (c *Cache) GetCurrent(ctx context.Context, eventID uint64) (Snapshot, bool, error) {
	val, err := c.Client.Get(ctx, key(eventID)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var s Snapshot
	if err := json.Unmarshal(val, &s); err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}
