package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/gunner6603/shopping-mall/internal/kafka"
	"github.com/gunner6603/shopping-mall/internal/orders"
)

const (
	// Orders modified within this interval are still given a chance to
	// finish paying and are never selected as candidates.
	DefaultStaleAfter = 30 * time.Minute
)

// DefaultEpoch is the scan start used before any watermark exists.
var DefaultEpoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// CandidateSource lists the non-terminal orders in a modification-time
// window. Implemented by orders.Repo.
type CandidateSource interface {
	ListIncomplete(ctx context.Context, start, end time.Time) ([]orders.Order, error)
}

// Canceller cancels one order in its own transaction. Implemented by
// orders.Repo.
type Canceller interface {
	Cancel(ctx context.Context, orderID string) error
}

// WatermarkStore is the persisted scan cursor. Implemented by Watermarks.
type WatermarkStore interface {
	Read(ctx context.Context) (time.Time, bool, error)
	Advance(ctx context.Context, newEnd time.Time) error
}

// Failure records one order whose cancellation attempt failed. The error
// is kept as a value here; it never propagates past the per-order
// boundary.
type Failure struct {
	OrderID string
	Err     error
}

type Result struct {
	ScanStart time.Time
	ScanEnd   time.Time
	Canceled  int
	Failures  []Failure
	Advanced  bool
}

// Scanner is the periodic reconciliation driver: it finds orders stuck
// in CREATED/PAYING, cancels them one independent transaction at a time
// and advances the watermark only when the whole batch succeeded, so a
// partly failed window is rescanned in full on the next run.
type Scanner struct {
	Orders     CandidateSource
	Canceller  Canceller
	Watermarks WatermarkStore
	Log        *zap.Logger

	StaleAfter time.Duration // zero means DefaultStaleAfter
	Epoch      time.Time     // zero means DefaultEpoch
	Now        func() time.Time
	Producer   *kafkax.Producer // optional; order.canceled notifications
	Service    string
}

// Run executes one scan. The returned error covers only the scan
// machinery (watermark/query failures); per-order cancellation failures
// are reported in the Result and logged, never returned.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	staleAfter := s.StaleAfter
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	epoch := s.Epoch
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}

	scanStart, present, err := s.Watermarks.Read(ctx)
	if err != nil {
		return Result{}, err
	}
	if !present {
		scanStart = epoch
	}
	scanEnd := now().Add(-staleAfter)
	res := Result{ScanStart: scanStart, ScanEnd: scanEnd}

	candidates, err := s.Orders.ListIncomplete(ctx, scanStart, scanEnd)
	if err != nil {
		return res, err
	}
	s.Log.Info("reconciliation scan started",
		zap.Time("scan_start", scanStart),
		zap.Time("scan_end", scanEnd),
		zap.Int("incomplete_orders", len(candidates)))

	for _, o := range candidates {
		if err := s.cancelOne(ctx, o); err != nil {
			res.Failures = append(res.Failures, Failure{OrderID: o.ID, Err: err})
			s.Log.Warn("order cancellation failed",
				zap.String("order_id", o.ID),
				zap.String("status", string(o.Status)),
				zap.Error(err))
			continue
		}
		res.Canceled++
		s.notifyCanceled(o)
	}

	// Advance only on a clean batch: a stale watermark makes the next
	// run redo the whole window, and the status filter keeps that redo
	// from touching orders already canceled.
	if len(res.Failures) == 0 {
		if err := s.Watermarks.Advance(ctx, scanEnd); err != nil {
			return res, err
		}
		res.Advanced = true
	}

	s.Log.Info("reconciliation scan ended",
		zap.Int("canceled", res.Canceled),
		zap.Int("failed", len(res.Failures)),
		zap.Bool("watermark_advanced", res.Advanced))
	return res, nil
}

// cancelOne is the per-order isolation boundary: whatever goes wrong in
// here is contained to this order and its own rolled-back transaction.
func (s *Scanner) cancelOne(ctx context.Context, o orders.Order) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while cancelling order %s: %v", o.ID, p)
		}
	}()
	return s.Canceller.Cancel(ctx, o.ID)
}

func (s *Scanner) notifyCanceled(o orders.Order) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCanceled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCanceledPayload{
			OrderID:    o.ID,
			MemberID:   o.MemberID,
			FromStatus: o.Status,
			Reason:     "STALE",
			Items:      orders.ItemQtys(o.Items),
		}),
	}
	s.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCanceled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
