package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// Tx is the slice of pgx.Tx the ledger needs. Keeping it narrow lets the
// order transitions run their stock effects on whatever transaction owns
// them, and lets tests swap in an in-memory one.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Ledger mutates per-product stock counts. Both operations run inside a
// transaction owned by the caller, so a stock change and the order state
// change that motivated it commit or roll back together.
type Ledger struct{}

// TryDecrease locks the product row (FOR UPDATE, held until the caller's
// tx ends), verifies stock >= qty and decrements. Returns
// ErrInsufficientStock without mutating anything if the check fails.
func (Ledger) TryDecrease(ctx context.Context, tx Tx, productID string, qty int) error {
	var current int
	err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("product not found: %s", productID)
	}
	if err != nil {
		return err
	}
	if current < qty {
		return fmt.Errorf("%w: product=%s required=%d available=%d", ErrInsufficientStock, productID, qty, current)
	}
	ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("stock decrease affected %d rows for product %s", ct.RowsAffected(), productID)
	}
	return nil
}

// Increase is the compensating half of TryDecrease: unconditional and
// purely additive. The caller's tx scope guarantees it is applied at
// most once per canceled order.
func (Ledger) Increase(ctx context.Context, tx Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("stock increase affected %d rows for product %s", ct.RowsAffected(), productID)
	}
	return nil
}
