package chatbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/chatbridge/model"
)

func testDelivery(g *ackGroup, payload string) Delivery {
	return Delivery{Payload: json.RawMessage(payload), Ack: g.newHandle()}
}

func TestSubscriber_Push(t *testing.T) {
	ctx := context.Background()
	rec := &settleRecorder{}
	g := newTestGroup(rec)

	t.Run("Buffered push preserves order", func(t *testing.T) {
		s := NewSubscriber("A", 2)
		require.NoError(t, s.push(ctx, testDelivery(g, `1`), time.Millisecond))
		require.NoError(t, s.push(ctx, testDelivery(g, `2`), time.Millisecond))
		assert.Equal(t, 2, s.Pending())

		assert.JSONEq(t, `1`, string((<-s.Deliveries()).Payload))
		assert.JSONEq(t, `2`, string((<-s.Deliveries()).Payload))
	})

	t.Run("Full queue times out with backpressure", func(t *testing.T) {
		s := NewSubscriber("A", 1)
		require.NoError(t, s.push(ctx, testDelivery(g, `1`), time.Millisecond))

		start := time.Now()
		err := s.push(ctx, testDelivery(g, `2`), 20*time.Millisecond)
		assert.True(t, HasCode(err, ErrCodeBackpressure))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("Full queue drained within timeout", func(t *testing.T) {
		s := NewSubscriber("A", 1)
		require.NoError(t, s.push(ctx, testDelivery(g, `1`), time.Millisecond))

		go func() {
			time.Sleep(5 * time.Millisecond)
			<-s.Deliveries()
		}()
		assert.NoError(t, s.push(ctx, testDelivery(g, `2`), time.Second))
	})

	t.Run("Closed subscriber is skipped", func(t *testing.T) {
		s := NewSubscriber("A", 1)
		s.Close()
		assert.ErrorIs(t, s.push(ctx, testDelivery(g, `1`), time.Millisecond), errSubscriberGone)
	})

	t.Run("Close while waiting on a full queue", func(t *testing.T) {
		s := NewSubscriber("A", 1)
		require.NoError(t, s.push(ctx, testDelivery(g, `1`), time.Millisecond))

		go func() {
			time.Sleep(5 * time.Millisecond)
			s.Close()
		}()
		assert.ErrorIs(t, s.push(ctx, testDelivery(g, `2`), time.Second), errSubscriberGone)
	})

	t.Run("Cancelled context while waiting", func(t *testing.T) {
		s := NewSubscriber("A", 1)
		require.NoError(t, s.push(ctx, testDelivery(g, `1`), time.Millisecond))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, s.push(cctx, testDelivery(g, `2`), time.Second), context.Canceled)
	})
}

func TestSubscriber_CloseReleasesBuffered(t *testing.T) {
	rec := &settleRecorder{}
	g := newTestGroup(rec)
	s := NewSubscriber("A", 4)

	require.NoError(t, s.push(context.Background(), testDelivery(g, `1`), time.Millisecond))
	require.NoError(t, s.push(context.Background(), testDelivery(g, `2`), time.Millisecond))
	require.NoError(t, g.arm(context.Background()))

	s.Close()
	s.Close() // idempotent

	assert.Equal(t, 0, s.Pending())
	commits, settled, committed := rec.snapshot()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, settled, "group settles once every buffered delivery is released")
	assert.False(t, committed)
}

func TestNewSubscriber_Defaults(t *testing.T) {
	s := NewSubscriber(model.RoutingKey("A"), 0)
	assert.Equal(t, DefaultBufferSize, cap(s.ch))
	assert.Equal(t, model.RoutingKey("A"), s.Key())
	assert.NotEqual(t, s.ID(), NewSubscriber("A", 1).ID())
}
