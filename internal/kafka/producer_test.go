package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPublishAfterCloseDoesNotPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewProducer(zap.NewNop(), []string{"localhost:9092"}, "test.topic", 4)
	p.Start(ctx)
	p.Close()
	p.WaitClosed()

	assert.NotPanics(t, func() { p.Publish([]byte("k"), []byte("v")) })
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewProducer(zap.NewNop(), []string{"localhost:9092"}, "test.topic", 4)
	p.Start(ctx)
	p.Close()
	assert.NotPanics(t, p.Close)
	p.WaitClosed()
}

func TestPublishAfterContextCancelDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := NewProducer(zap.NewNop(), []string{"localhost:9092"}, "test.topic", 1)
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	// loop is gone; even with a full inbox the publish must return
	assert.NotPanics(t, func() {
		p.Publish([]byte("k1"), []byte("v1"))
		p.Publish([]byte("k2"), []byte("v2"))
	})
}
