package catalog

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Warmer precomputes recommendation entries for every product in one
// pass over completed orders, instead of paying the co-purchase query
// per cache miss.
type Warmer struct {
	Cache *Cache
	Log   *zap.Logger
}

func (w *Warmer) WarmRecommendationCache(ctx context.Context) error {
	start := time.Now()

	productIDs, err := w.allProductIDs(ctx)
	if err != nil {
		return err
	}
	pairs, err := w.completedOrderPairs(ctx)
	if err != nil {
		return err
	}

	orderedWith := CoOrderedIndex(productIDs, pairs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, productID := range productIDs {
		productID := productID
		g.Go(func() error {
			ids := RankCoOccurring(orderedWith[productID], RecommendationSize)
			return w.Cache.SetRecommendationIDs(gctx, productID, ids)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.Log.Info("recommendation cache warmed",
		zap.Int("products", len(productIDs)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// ProductOrderPair is one (product, order) membership row from
// completed orders.
type ProductOrderPair struct {
	ProductID string
	OrderID   string
}

func (w *Warmer) allProductIDs(ctx context.Context) ([]string, error) {
	rows, err := w.Cache.DB.Query(ctx, `SELECT id FROM products`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (w *Warmer) completedOrderPairs(ctx context.Context) ([]ProductOrderPair, error) {
	rows, err := w.Cache.DB.Query(ctx, `
		SELECT oi.product_id, o.id
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status = 'COMPLETED'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []ProductOrderPair
	for rows.Next() {
		var p ProductOrderPair
		if err := rows.Scan(&p.ProductID, &p.OrderID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// CoOrderedIndex maps each product id to the multiset of product ids it
// shared a completed order with.
func CoOrderedIndex(productIDs []string, pairs []ProductOrderPair) map[string][]string {
	byOrder := map[string][]string{}
	for _, p := range pairs {
		byOrder[p.OrderID] = append(byOrder[p.OrderID], p.ProductID)
	}

	out := make(map[string][]string, len(productIDs))
	for _, id := range productIDs {
		out[id] = nil
	}
	for _, ids := range byOrder {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				out[ids[i]] = append(out[ids[i]], ids[j])
				out[ids[j]] = append(out[ids[j]], ids[i])
			}
		}
	}
	return out
}

// RankCoOccurring orders the multiset by frequency (ties broken by id,
// descending, matching the fallback query) and keeps the top n.
func RankCoOccurring(coOrdered []string, n int) []string {
	counts := map[string]int{}
	for _, id := range coOrdered {
		counts[id]++
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] > ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
