package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gunner6603/shopping-mall/internal/orders"
)

type fakeSource struct {
	gotStart, gotEnd time.Time
	orders           []orders.Order
	err              error
}

func (f *fakeSource) ListIncomplete(_ context.Context, start, end time.Time) ([]orders.Order, error) {
	f.gotStart, f.gotEnd = start, end
	if f.err != nil {
		return nil, f.err
	}
	var inRange []orders.Order
	for _, o := range f.orders {
		if !o.LastModifiedAt.Before(start) && !o.LastModifiedAt.After(end) {
			inRange = append(inRange, o)
		}
	}
	return inRange, nil
}

type fakeCanceller struct {
	canceled []string
	failOn   map[string]error
	panicOn  string
}

func (f *fakeCanceller) Cancel(_ context.Context, orderID string) error {
	if orderID == f.panicOn {
		panic("boom")
	}
	if err, ok := f.failOn[orderID]; ok {
		return err
	}
	f.canceled = append(f.canceled, orderID)
	return nil
}

type fakeWatermarks struct {
	value    time.Time
	present  bool
	advanced []time.Time
}

func (f *fakeWatermarks) Read(context.Context) (time.Time, bool, error) {
	return f.value, f.present, nil
}

func (f *fakeWatermarks) Advance(_ context.Context, t time.Time) error {
	f.value, f.present = t, true
	f.advanced = append(f.advanced, t)
	return nil
}

func newScanner(src *fakeSource, c *fakeCanceller, w *fakeWatermarks, now time.Time) *Scanner {
	return &Scanner{
		Orders:     src,
		Canceller:  c,
		Watermarks: w,
		Log:        zap.NewNop(),
		StaleAfter: 30 * time.Minute,
		Now:        func() time.Time { return now },
	}
}

func TestRunCancelsStalePayingOrderAndAdvances(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{orders: []orders.Order{{
		ID:             "o1",
		Status:         orders.StatusPaying,
		LastModifiedAt: now.Add(-45 * time.Minute),
	}}}
	c := &fakeCanceller{}
	w := &fakeWatermarks{} // absent: default epoch applies

	res, err := newScanner(src, c, w, now).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DefaultEpoch, src.gotStart)
	assert.Equal(t, now.Add(-30*time.Minute), src.gotEnd)
	assert.Equal(t, []string{"o1"}, c.canceled)
	assert.Equal(t, 1, res.Canceled)
	assert.True(t, res.Advanced)
	assert.Equal(t, []time.Time{now.Add(-30 * time.Minute)}, w.advanced)
}

func TestRunLeavesFreshOrdersAloneButStillAdvances(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{orders: []orders.Order{{
		ID:             "o1",
		Status:         orders.StatusPaying,
		LastModifiedAt: now.Add(-15 * time.Minute), // younger than staleness interval
	}}}
	c := &fakeCanceller{}
	w := &fakeWatermarks{}

	res, err := newScanner(src, c, w, now).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, c.canceled)
	assert.Zero(t, res.Canceled)
	// nothing in range to fail, so the window is done
	assert.True(t, res.Advanced)
	assert.Equal(t, now.Add(-30*time.Minute), w.value)
}

func TestRunListingErrorStopsScan(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		orders: []orders.Order{{
			ID:             "o1",
			Status:         orders.StatusPaying,
			LastModifiedAt: now.Add(-45 * time.Minute),
		}},
		err: errors.New("db down"),
	}
	c := &fakeCanceller{}
	w := &fakeWatermarks{}

	_, err := newScanner(src, c, w, now).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, c.canceled)
	assert.Empty(t, w.advanced)
}

func TestRunUsesStoredWatermarkAsScanStart(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mark := now.Add(-1 * time.Hour)
	src := &fakeSource{}
	w := &fakeWatermarks{value: mark, present: true}

	_, err := newScanner(src, &fakeCanceller{}, w, now).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mark, src.gotStart)
}

func TestRunOneFailureDoesNotBlockSiblingsOrAdvance(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-45 * time.Minute)
	src := &fakeSource{orders: []orders.Order{
		{ID: "o1", Status: orders.StatusPaying, LastModifiedAt: stale},
		{ID: "o2", Status: orders.StatusPaying, LastModifiedAt: stale},
	}}
	c := &fakeCanceller{failOn: map[string]error{"o2": errors.New("lock conflict")}}
	w := &fakeWatermarks{value: now.Add(-2 * time.Hour), present: true}
	before := w.value

	res, err := newScanner(src, c, w, now).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"o1"}, c.canceled)
	assert.Equal(t, 1, res.Canceled)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "o2", res.Failures[0].OrderID)
	assert.False(t, res.Advanced)
	assert.Equal(t, before, w.value)
	assert.Empty(t, w.advanced)
}

func TestRunPanicIsContainedToOneOrder(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-45 * time.Minute)
	src := &fakeSource{orders: []orders.Order{
		{ID: "o1", Status: orders.StatusCreated, LastModifiedAt: stale},
		{ID: "o2", Status: orders.StatusPaying, LastModifiedAt: stale},
		{ID: "o3", Status: orders.StatusCreated, LastModifiedAt: stale},
	}}
	c := &fakeCanceller{panicOn: "o2"}
	w := &fakeWatermarks{}

	res, err := newScanner(src, c, w, now).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"o1", "o3"}, c.canceled)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "o2", res.Failures[0].OrderID)
	assert.False(t, res.Advanced)
}

func TestRunSecondScanIsNoOp(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{orders: []orders.Order{{
		ID:             "o1",
		Status:         orders.StatusPaying,
		LastModifiedAt: now.Add(-45 * time.Minute),
	}}}
	c := &fakeCanceller{}
	w := &fakeWatermarks{}
	s := newScanner(src, c, w, now)

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	// canceled order is now terminal; drop it from the candidate set
	src.orders = nil

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Canceled)
	assert.Empty(t, res.Failures)
	assert.Equal(t, now.Add(-30*time.Minute), src.gotStart, "second scan resumes at the advanced watermark")
}

func TestRunDefaultsWhenUnset(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	s := &Scanner{
		Orders:     src,
		Canceller:  &fakeCanceller{},
		Watermarks: &fakeWatermarks{},
		Log:        zap.NewNop(),
		Now:        func() time.Time { return now },
	}
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultEpoch, src.gotStart)
	assert.Equal(t, now.Add(-DefaultStaleAfter), src.gotEnd)
}
