// Package pause implementa a capability de circuit breaker sobre uma chave
// Redis: o operador liga/desliga a pausa sem redeploy.
package pause

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type RedisSwitch struct {
	Client *redis.Client
	Key    string
}

func NewRedisSwitch(c *redis.Client, key string) *RedisSwitch {
	return &RedisSwitch{Client: c, Key: key}
}

// Paused consulta a chave; erro de Redis não derruba o serviço — o sistema
// segue não-pausado e o erro aparece nas métricas do Redis.
func (s *RedisSwitch) Paused(ctx context.Context) bool {
	v, err := s.Client.Get(ctx, s.Key).Result()
	if err != nil {
		return false
	}
	return v == "1"
}

// SetPaused liga/desliga o circuit breaker.
func (s *RedisSwitch) SetPaused(ctx context.Context, paused bool) error {
	v := "0"
	if paused {
		v = "1"
	}
	return s.Client.Set(ctx, s.Key, v, 0).Err()
}
