package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gunner6603/shopping-mall/internal/redisx"
)

const RecommendationSize = 30

// Cache serves "bought together" recommendation ids from Redis, falling
// back to a co-purchase query over completed orders on a miss.
type Cache struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Log   *zap.Logger
}

func (c *Cache) RecommendationIDs(ctx context.Context, productID string) ([]string, error) {
	key := fmt.Sprintf(redisx.KeyRecommendation, productID)
	if raw, err := c.Redis.Get(ctx, key).Result(); err == nil {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			return ids, nil
		}
	}

	ids, err := c.queryRecommendations(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := c.SetRecommendationIDs(ctx, productID, ids); err != nil {
		c.Log.Warn("recommendation cache set failed",
			zap.String("product_id", productID), zap.Error(err))
	}
	return ids, nil
}

func (c *Cache) SetRecommendationIDs(ctx context.Context, productID string, ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeyRecommendation, productID)
	return c.Redis.Set(ctx, key, b, redisx.TTLRecommendation).Err()
}

// ClearAll evicts every recommendation entry.
func (c *Cache) ClearAll(ctx context.Context) error {
	pattern := fmt.Sprintf(redisx.KeyRecommendation, "*")
	iter := c.Redis.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Redis.Del(ctx, keys...).Err()
}

// queryRecommendations ranks products co-purchased with productID in
// completed orders.
func (c *Cache) queryRecommendations(ctx context.Context, productID string) ([]string, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT oi.product_id
		FROM order_items oi
		WHERE oi.order_id IN (
			SELECT o.id
			FROM order_items inner_oi
			JOIN orders o ON inner_oi.order_id = o.id
			WHERE inner_oi.product_id = $1 AND o.status = 'COMPLETED'
		) AND oi.product_id != $1
		GROUP BY oi.product_id
		ORDER BY count(oi.id) DESC, oi.product_id DESC
		LIMIT $2`, productID, RecommendationSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, RecommendationSize)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
