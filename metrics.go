package chatbridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "chatbridge"

// Delivery results.
const (
	deliveryDelivered    = "delivered"
	deliveryBackpressure = "backpressure"
	deliverySkipped      = "skipped"
)

// Commit reasons.
const (
	commitReasonAck           = "ack"
	commitReasonNoSubscribers = "no_subscribers"
	commitReasonPoison        = "poison"
)

// Collector is a prometheus.Collector that collects metrics about the
// bridge. A nil *Collector is valid and records nothing.
type Collector struct {
	recordsConsumed     prometheus.Counter
	decodeErrors        prometheus.Counter
	deliveries          *prometheus.CounterVec
	commits             *prometheus.CounterVec
	commitErrors        prometheus.Counter
	unacked             prometheus.Counter
	evictions           prometheus.Counter
	publishes           *prometheus.CounterVec
	attachedSubscribers prometheus.Gauge
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		recordsConsumed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_consumed_total",
				Help:      "The number of records polled from the log.",
			},
		),
		decodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "decode_errors_total",
				Help:      "The number of malformed records skipped.",
			},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deliveries_total",
				Help:      "The number of pushes to subscriber queues, by result.",
			}, []string{"result"},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commits_total",
				Help:      "The number of offset commits, by reason.",
			}, []string{"reason"},
		),
		commitErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commit_errors_total",
				Help:      "The number of failed offset commits.",
			},
		),
		unacked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fanouts_unacked_total",
				Help:      "The number of fanned-out records released by every subscriber without an ack.",
			},
		),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "subscriber_evictions_total",
				Help:      "The number of subscribers detached after repeated backpressure drops.",
			},
		),
		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "publishes_total",
				Help:      "The number of publish calls, by result.",
			}, []string{"result"},
		),
		attachedSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "attached_subscribers",
				Help:      "The number of streams currently attached to the registry.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.recordsConsumed.Describe(ch)
	c.decodeErrors.Describe(ch)
	c.deliveries.Describe(ch)
	c.commits.Describe(ch)
	c.commitErrors.Describe(ch)
	c.unacked.Describe(ch)
	c.evictions.Describe(ch)
	c.publishes.Describe(ch)
	c.attachedSubscribers.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.recordsConsumed.Collect(ch)
	c.decodeErrors.Collect(ch)
	c.deliveries.Collect(ch)
	c.commits.Collect(ch)
	c.commitErrors.Collect(ch)
	c.unacked.Collect(ch)
	c.evictions.Collect(ch)
	c.publishes.Collect(ch)
	c.attachedSubscribers.Collect(ch)
}

func (c *Collector) recordConsumed() {
	if c != nil {
		c.recordsConsumed.Inc()
	}
}

func (c *Collector) decodeError() {
	if c != nil {
		c.decodeErrors.Inc()
	}
}

func (c *Collector) delivery(result string) {
	if c != nil {
		c.deliveries.WithLabelValues(result).Inc()
	}
}

func (c *Collector) commit(reason string, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.commitErrors.Inc()
		return
	}
	c.commits.WithLabelValues(reason).Inc()
}

func (c *Collector) fanoutUnacked() {
	if c != nil {
		c.unacked.Inc()
	}
}

func (c *Collector) eviction() {
	if c != nil {
		c.evictions.Inc()
	}
}

func (c *Collector) publish(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.publishes.WithLabelValues(result).Inc()
}

func (c *Collector) streamAttached() {
	if c != nil {
		c.attachedSubscribers.Inc()
	}
}

func (c *Collector) streamDetached() {
	if c != nil {
		c.attachedSubscribers.Dec()
	}
}
