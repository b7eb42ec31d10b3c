package redisx

import "time"

const (
	// Cache order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Recommendation ids per product: rec:{product_id} -> JSON id list
	KeyRecommendation = "rec:%s"
)

var (
	TTLStatusCache    = 5 * time.Minute
	TTLDedup          = 48 * time.Hour
	TTLRecommendation = 24 * time.Hour
)
