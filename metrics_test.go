package chatbridge

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewMetricsCollector()))
}

func TestCollector_Records(t *testing.T) {
	c := NewMetricsCollector()

	c.recordConsumed()
	c.recordConsumed()
	c.decodeError()
	c.delivery(deliveryDelivered)
	c.delivery(deliveryBackpressure)
	c.commit(commitReasonAck, nil)
	c.commit(commitReasonPoison, nil)
	c.commit(commitReasonAck, errors.New("rebalance"))
	c.publish(nil)
	c.publish(errors.New("queue full"))
	c.streamAttached()
	c.streamAttached()
	c.streamDetached()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.recordsConsumed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues(deliveryDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues(deliveryBackpressure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commits.WithLabelValues(commitReasonAck)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commits.WithLabelValues(commitReasonPoison)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commitErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attachedSubscribers))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.recordConsumed()
		c.decodeError()
		c.delivery(deliverySkipped)
		c.commit(commitReasonNoSubscribers, nil)
		c.fanoutUnacked()
		c.eviction()
		c.publish(nil)
		c.streamAttached()
		c.streamDetached()
	})
}

func TestCollector_PublishResults(t *testing.T) {
	c := NewMetricsCollector()
	c.publish(nil)
	c.publish(nil)
	c.publish(errors.New("queue full"))

	var ok, failed dto.Metric
	require.NoError(t, c.publishes.WithLabelValues("ok").Write(&ok))
	require.NoError(t, c.publishes.WithLabelValues("error").Write(&failed))
	assert.Equal(t, 2.0, ok.GetCounter().GetValue())
	assert.Equal(t, 1.0, failed.GetCounter().GetValue())

	assert.Equal(t, 8, testutil.CollectAndCount(c), "vectors only export used label values")
}
