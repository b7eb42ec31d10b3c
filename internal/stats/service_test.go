package stats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gunner6603/shopping-mall/internal/orders"
)

type fakeDedup struct {
	seen    bool
	seenErr error
	markErr error
	marked  []string
}

func (d *fakeDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return d.seen, d.seenErr
}

func (d *fakeDedup) Mark(ctx context.Context, eventID string) error {
	d.marked = append(d.marked, eventID)
	return d.markErr
}

func completedMessage(t *testing.T, eventID string) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(orders.OrderCompletedPayload{
		OrderID:  "o-1",
		MemberID: "m-1",
		Items:    []orders.ItemQty{{ProductID: "p-1", Qty: 2}},
	})
	require.NoError(t, err)
	raw, err := json.Marshal(orders.Envelope{
		EventID:   eventID,
		EventType: orders.EventOrderCompleted,
		Payload:   payload,
	})
	require.NoError(t, err)
	return kafkago.Message{Value: raw}
}

// Service.DB is nil in these tests: reaching the counter upsert would
// panic, so passing proves the dedup gate short-circuited.

func TestHandleOrderCompletedSkipsSeenEvent(t *testing.T) {
	d := &fakeDedup{seen: true}
	s := &Service{Dedup: d, Log: zap.NewNop()}

	err := s.HandleOrderCompleted(context.Background(), completedMessage(t, "ev-1"))
	require.NoError(t, err)
	assert.Empty(t, d.marked)
}

func TestHandleOrderCompletedSurfacesDedupError(t *testing.T) {
	boom := errors.New("redis down")
	d := &fakeDedup{seenErr: boom}
	s := &Service{Dedup: d, Log: zap.NewNop()}

	err := s.HandleOrderCompleted(context.Background(), completedMessage(t, "ev-1"))
	require.ErrorIs(t, err, boom)
	assert.Empty(t, d.marked)
}

func TestHandleOrderCompletedIgnoresOtherEventTypes(t *testing.T) {
	raw, err := json.Marshal(orders.Envelope{EventID: "ev-2", EventType: orders.EventOrderCanceled})
	require.NoError(t, err)

	s := &Service{Dedup: &fakeDedup{seenErr: errors.New("never called")}, Log: zap.NewNop()}
	require.NoError(t, s.HandleOrderCompleted(context.Background(), kafkago.Message{Value: raw}))
}

func TestBirthYearRange(t *testing.T) {
	assert.Equal(t, "1990~1999", BirthYearRange(1990))
	assert.Equal(t, "1990~1999", BirthYearRange(1999))
	assert.Equal(t, "2000~2009", BirthYearRange(2003))
}
