package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Watermarks persists the single last-scan boundary. One conceptual
// cursor per deployment: the scanner is the only writer, and running
// two scanner instances against the same row is outside the correctness
// envelope (see DESIGN.md).
type Watermarks struct{ DB *pgxpool.Pool }

// Read returns the stored boundary, or (zero, false) when no scan has
// completed yet. The empty row is created lazily on first read so every
// later Advance targets the same row.
func (w *Watermarks) Read(ctx context.Context) (time.Time, bool, error) {
	var t *time.Time
	err := w.DB.QueryRow(ctx, `SELECT time_value FROM last_scan_time WHERE id=1`).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := w.DB.Exec(ctx, `
			INSERT INTO last_scan_time(id, time_value) VALUES (1, NULL)
			ON CONFLICT (id) DO NOTHING`); err != nil {
			return time.Time{}, false, err
		}
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if t == nil {
		return time.Time{}, false, nil
	}
	return *t, true, nil
}

// Advance unconditionally overwrites the boundary. No history is kept.
func (w *Watermarks) Advance(ctx context.Context, newEnd time.Time) error {
	_, err := w.DB.Exec(ctx, `
		INSERT INTO last_scan_time(id, time_value) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET time_value = EXCLUDED.time_value`, newEnd)
	return err
}
