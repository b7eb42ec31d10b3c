package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/gunner6603/shopping-mall/internal/kafka"
	"github.com/gunner6603/shopping-mall/internal/orders"
)

// Service aggregates completed orders into per-demographic purchase
// counters. Strictly downstream of pay completion: it consumes the
// OrderCompleted topic and never blocks or fails the order transition.
type Service struct {
	DB    *pgxpool.Pool
	Dedup Dedup
	Log   *zap.Logger
}

// HandleOrderCompleted is mounted as the consumer handler.
func (s *Service) HandleOrderCompleted(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCompleted {
		return nil // ignore
	}

	// dedup by event_id so redelivery never double-counts. The counter
	// upsert is additive, so a dedup miss is an error, not a "not seen":
	// failing here leaves the offset uncommitted and the event retried.
	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup check %s: %w", env.EventID, err)
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	if err := s.apply(ctx, p); err != nil {
		if errors.Is(err, orders.ErrUnknownReference) {
			// fatal for this event only; do not hold up the partition
			s.Log.Error("order stat skipped",
				zap.String("order_id", p.OrderID), zap.Error(err))
			return nil
		}
		return err
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		// counters are already applied; failing the commit now would
		// guarantee the double count the mark exists to prevent
		s.Log.Warn("dedup mark failed",
			zap.String("event_id", env.EventID), zap.Error(err))
	}
	return nil
}

func (s *Service) apply(ctx context.Context, p orders.OrderCompletedPayload) error {
	var m orders.Member
	err := s.DB.QueryRow(ctx, `SELECT id, birth_date, gender FROM members WHERE id=$1`, p.MemberID).
		Scan(&m.ID, &m.BirthDate, &m.Gender)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: member %s", orders.ErrUnknownReference, p.MemberID)
	}
	if err != nil {
		return err
	}

	rng := BirthYearRange(m.BirthDate.Year())
	for _, it := range p.Items {
		_, err := s.DB.Exec(ctx, `
			INSERT INTO order_stats(product_id, birth_year_range, gender, count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (product_id, birth_year_range, gender)
			DO UPDATE SET count = order_stats.count + EXCLUDED.count`,
			it.ProductID, rng, m.Gender, it.Qty)
		if err != nil {
			return err
		}
	}
	return nil
}

// BirthYearRange buckets a birth year into its decade, e.g. "1990~1999".
func BirthYearRange(year int) string {
	lo := year - year%10
	return fmt.Sprintf("%d~%d", lo, lo+9)
}
