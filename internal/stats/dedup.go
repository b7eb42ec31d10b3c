package stats

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gunner6603/shopping-mall/internal/redisx"
)

// Dedup remembers which event IDs have already been applied.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// RedisDedup keys events per consuming service, so two consumers of the
// same topic keep independent dedup sets.
type RedisDedup struct {
	Client  *redis.Client
	Service string
}

func (d *RedisDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return redisx.Exists(ctx, d.Client, fmt.Sprintf(redisx.KeyDedup, d.Service, eventID))
}

func (d *RedisDedup) Mark(ctx context.Context, eventID string) error {
	return d.Client.Set(ctx, fmt.Sprintf(redisx.KeyDedup, d.Service, eventID), "1", redisx.TTLDedup).Err()
}
