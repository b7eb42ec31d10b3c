package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/gunner6603/shopping-mall/internal/catalog"
	kafkax "github.com/gunner6603/shopping-mall/internal/kafka"
	"github.com/gunner6603/shopping-mall/internal/orders"
	"github.com/gunner6603/shopping-mall/internal/redisx"
	"github.com/gunner6603/shopping-mall/internal/stock"
)

type OrdersHandler struct {
	Repo     *orders.Repo
	Cache    *catalog.Cache
	Producer *kafkax.Producer // order.completed events
	Redis    *redis.Client
	Service  string
}

type CreateOrderReq struct {
	MemberID string             `json:"member_id"`
	Items    []orders.ItemInput `json:"items"`
}

type CreateOrderResp struct {
	OrderID    string `json:"order_id"`
	TotalCents int    `json:"total_cents"`
}

type PayReq struct {
	MemberID string `json:"member_id"`
	PayType  string `json:"pay_type"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/{id}/pay", h.startPay)
	r.Post("/orders/{id}/pay/complete", h.completePay)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}/recommendations", h.recommendations)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, stock.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrIllegalOrderState):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.MemberID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID, total, err := h.Repo.Create(ctx, req.MemberID, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	// cache status (CREATED) for fast GETs
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"CREATED"}`, redisx.TTLStatusCache).Err()

	writeJSON(w, http.StatusCreated, CreateOrderResp{OrderID: orderID, TotalCents: total})
}

func (h *OrdersHandler) startPay(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req PayReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if orderID == "" || req.MemberID == "" || req.PayType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Repo.StartPay(ctx, orderID, req.MemberID, req.PayType); err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, orders.StatusPaying)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusPaying)})
}

func (h *OrdersHandler) completePay(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req PayReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if orderID == "" || req.MemberID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.CompletePay(ctx, orderID, req.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, orders.StatusCompleted)

	// statistics are downstream and fire-and-forget; the transition has
	// already committed.
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderCompletedPayload{
			OrderID:  orderID,
			MemberID: o.MemberID,
			Items:    orders.ItemQtys(o.Items),
		}),
	}
	h.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCompleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusCompleted)})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	memberID := r.URL.Query().Get("member_id")
	if orderID == "" || memberID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.Get(ctx, orderID, memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) recommendations(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if productID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ids, err := h.Cache.RecommendationIDs(ctx, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_ids": ids})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, s orders.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, s), redisx.TTLStatusCache).Err()
}
