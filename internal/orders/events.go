package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCompleted = "OrderCompleted"
	EventOrderCanceled  = "OrderCanceled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// OrderCompletedPayload feeds the statistics worker. Fire-and-forget:
// the pay-completion transaction never waits on it.
type OrderCompletedPayload struct {
	OrderID  string    `json:"order_id"`
	MemberID string    `json:"member_id"`
	Items    []ItemQty `json:"items"`
}

// OrderCanceledPayload is published by the reconciliation scanner for
// notification consumers. Reason is "STALE" for scanner cancellations.
type OrderCanceledPayload struct {
	OrderID    string    `json:"order_id"`
	MemberID   string    `json:"member_id"`
	FromStatus Status    `json:"from_status"`
	Reason     string    `json:"reason"`
	Items      []ItemQty `json:"items,omitempty"`
}

func ItemQtys(items []OrderItem) []ItemQty {
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}
