package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gunner6603/shopping-mall/internal/stock"
)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Repo struct {
	DB     *pgxpool.Pool
	Ledger stock.Ledger
}

// Create builds an order from a cart snapshot. Prices are read from the
// products table inside the tx (never trusted from the client) and the
// total is fixed here once and for all.
func (r *Repo) Create(ctx context.Context, memberID string, items []ItemInput) (orderID string, total int, err error) {
	if len(items) == 0 {
		return "", 0, fmt.Errorf("empty cart")
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	productIDs := make([]string, 0, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return "", 0, fmt.Errorf("invalid qty for product %s", it.ProductID)
		}
		productIDs = append(productIDs, it.ProductID)
	}

	rows, err := tx.Query(ctx, `SELECT id, price_cents FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return "", 0, err
	}
	prices := map[string]int{}
	for rows.Next() {
		var id string
		var price int
		if err := rows.Scan(&id, &price); err != nil {
			return "", 0, err
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	for _, it := range items {
		price, ok := prices[it.ProductID]
		if !ok {
			return "", 0, fmt.Errorf("%w: product %s", ErrUnknownReference, it.ProductID)
		}
		total += price * it.Qty
	}

	orderID = uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, member_id, status, total_cents, created_at, last_modified_at)
		VALUES ($1, $2, 'CREATED', $3, now(), now())
	`, orderID, memberID, total)
	if err != nil {
		return "", 0, err
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, price_cents)
			VALUES ($1, $2, $3, $4)`,
			orderID, it.ProductID, it.Qty, prices[it.ProductID],
		)
		if err != nil {
			return "", 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, err
	}
	return orderID, total, nil
}

// StartPay moves CREATED -> PAYING and decrements stock for every line
// item under per-product exclusive locks. All-or-nothing: any
// insufficient line rolls back the whole transition.
func (r *Repo) StartPay(ctx context.Context, orderID, memberID, payType string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID, memberID)
	if err != nil {
		return err
	}
	if _, err := o.Status.Transition(StatusPaying); err != nil {
		return err
	}

	items, err := loadItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := decreaseStock(ctx, tx, r.Ledger, items); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders SET status='PAYING', pay_type=$2, last_modified_at=now() WHERE id=$1
	`, orderID, payType)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CompletePay moves PAYING -> COMPLETED. Downstream statistics effects
// are the caller's concern (published after commit, fire-and-forget).
func (r *Repo) CompletePay(ctx context.Context, orderID, memberID string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID, memberID)
	if err != nil {
		return Order{}, err
	}
	if _, err := o.Status.Transition(StatusCompleted); err != nil {
		return Order{}, err
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status='COMPLETED', last_modified_at=now() WHERE id=$1`, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Items, err = loadItems(ctx, tx, orderID); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	o.Status = StatusCompleted
	return o, nil
}

// Cancel runs in its own transaction. CREATED orders just flip state;
// PAYING orders first get every line item's stock restored, and the
// restoration commits together with the status change or not at all.
func (r *Repo) Cancel(ctx context.Context, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if err != nil {
		return err
	}
	if _, err := status.Transition(StatusCanceled); err != nil {
		return err
	}

	items, err := loadItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := restoreStock(ctx, tx, r.Ledger, status, items); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status='CANCELED', last_modified_at=now() WHERE id=$1`, orderID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListIncomplete returns CREATED/PAYING orders whose last modification
// falls in [start, end], items included. Orders already in a terminal
// state never match, which is what makes rescanning the same window
// idempotent.
func (r *Repo) ListIncomplete(ctx context.Context, start, end time.Time) ([]Order, error) {
	statuses := make([]string, 0, len(IncompleteStatuses))
	for _, s := range IncompleteStatuses {
		statuses = append(statuses, string(s))
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, member_id, status, total_cents, created_at, last_modified_at
		FROM orders
		WHERE status = ANY($1) AND last_modified_at BETWEEN $2 AND $3
		ORDER BY last_modified_at`,
		statuses, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	ids := make([]string, 0)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.MemberID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.LastModifiedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	irows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, qty, price_cents
		FROM order_items WHERE order_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer irows.Close()

	byOrder := map[string][]OrderItem{}
	for irows.Next() {
		var it OrderItem
		if err := irows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if err := irows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = byOrder[out[i].ID]
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, orderID, memberID string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, member_id, status, total_cents, created_at, last_modified_at
		FROM orders WHERE id=$1 AND member_id=$2`, orderID, memberID).
		Scan(&o.ID, &o.MemberID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.LastModifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if err != nil {
		return Order{}, err
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, qty, price_cents
		FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceCents); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *Repo) GetStatus(ctx context.Context, orderID string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, stock, price_cents, created_at, updated_at
                                FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Stock, &p.PriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// lockOrder reads an order row FOR UPDATE so a payment transition cannot
// complete on an order mid-cancellation, and vice versa.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID, memberID string) (Order, error) {
	var o Order
	err := tx.QueryRow(ctx, `
		SELECT id, member_id, status, total_cents, created_at, last_modified_at
		FROM orders WHERE id=$1 AND member_id=$2 FOR UPDATE`, orderID, memberID).
		Scan(&o.ID, &o.MemberID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.LastModifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return o, err
}

// decreaseStock reserves stock for every line item inside the caller's
// tx. Any failing line makes the whole reservation fail, and the caller
// must roll back so earlier decrements never land.
func decreaseStock(ctx context.Context, tx stock.Tx, l stock.Ledger, items []OrderItem) error {
	for _, it := range items {
		if err := l.TryDecrease(ctx, tx, it.ProductID, it.Qty); err != nil {
			return err
		}
	}
	return nil
}

// restoreStock returns reserved stock on cancellation. Only PAYING
// orders hold a reservation; cancelling from any other state leaves the
// ledger untouched.
func restoreStock(ctx context.Context, tx stock.Tx, l stock.Ledger, from Status, items []OrderItem) error {
	if from != StatusPaying {
		return nil
	}
	for _, it := range items {
		if err := l.Increase(ctx, tx, it.ProductID, it.Qty); err != nil {
			return err
		}
	}
	return nil
}

func loadItems(ctx context.Context, tx pgx.Tx, orderID string) ([]OrderItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, order_id, product_id, qty, price_cents
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
