package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestEvent_Encode(t *testing.T) {
	e := Event{
		Type:       RefundCreated,
		MerchantID: 7,
		OrderID:    "o-1",
		Attrs:      map[string]string{"total": "33.00", "reason": "customer"},
		At:         time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	var enc jx.Encoder
	e.Encode(&enc)

	assert.JSONEq(t,
		`{"type":"refund.created","merchant_id":7,"order_id":"o-1","attrs":{"reason":"customer","total":"33.00"},"at":"2025-06-15T12:00:00Z"}`,
		string(enc.Bytes()),
	)
}

func TestAsync_DeliversAndDrains(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	sink := NewAsync(pub, zap.NewNop(), 16)

	for range 5 {
		sink.Record(context.Background(), Event{Type: OrderCreated})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx, time.Second) }()

	require.Eventually(t, func() bool { return pub.count() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestAsync_StampsRequestID(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewAsync(pub, zap.NewNop(), 4)

	ctx := WithRequestID(context.Background(), "req-42")
	sink.Record(ctx, Event{Type: OrderCreated})
	sink.Record(ctx, Event{Type: OrderUpdated, RequestID: "explicit"})
	sink.Record(context.Background(), Event{Type: OrderUpdated})

	got := []string{(<-sink.events).RequestID, (<-sink.events).RequestID, (<-sink.events).RequestID}
	assert.Equal(t, []string{"req-42", "explicit", ""}, got)
}

func TestAsync_DropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewAsync(pub, zap.NewNop(), 2)

	for range 5 {
		sink.Record(context.Background(), Event{Type: OrderUpdated})
	}

	assert.Equal(t, int64(3), sink.Dropped())
}
