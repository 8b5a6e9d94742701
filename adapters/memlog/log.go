package memlog

import (
	"hash/fnv"
	"sync"

	"github.com/coregx/chatbridge/model"
)

// DefaultPartitions is the number of partitions of every topic unless WithPartitions is used.
const DefaultPartitions = 1

// Option configures a Log.
type Option func(*Log)

// WithPartitions sets the number of partitions per topic. Values below 1 are ignored.
func WithPartitions(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.partitions = n
		}
	}
}

// Log is an in-memory partitioned log shared by producers and consumers.
type Log struct {
	partitions int

	mu        sync.Mutex
	topics    map[string][][]model.Record
	committed map[groupPartition]int64
	waiters   map[*readyWait]struct{}
}

type groupPartition struct {
	group     string
	topic     string
	partition int32
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{
		partitions: DefaultPartitions,
		topics:     make(map[string][][]model.Record),
		committed:  make(map[groupPartition]int64),
		waiters:    make(map[*readyWait]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Producer returns a new producer handle. Closing it does not affect other handles.
func (l *Log) Producer() *Producer {
	return &Producer{log: l}
}

// Consumer returns a consumer of topics in group. It starts at the group's
// committed offsets, or at the beginning of each partition.
func (l *Log) Consumer(group string, topics ...string) *Consumer {
	c := &Consumer{
		log:     l,
		group:   group,
		topics:  topics,
		cursors: make(map[topicPartition]int64),
		ready:   makeReadyWait(),
		closing: make(chan struct{}),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, topic := range topics {
		for p := 0; p < l.partitions; p++ {
			tp := topicPartition{topic: topic, partition: int32(p)}
			c.cursors[tp] = l.committed[groupPartition{group: group, topic: topic, partition: int32(p)}]
		}
	}
	l.waiters[c.ready] = struct{}{}
	return c
}

// Committed returns the next offset group will read from topic's partition.
func (l *Log) Committed(group, topic string, partition int32) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed[groupPartition{group: group, topic: topic, partition: partition}]
}

// Len returns the number of records appended to topic across all partitions.
func (l *Log) Len(topic string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, records := range l.topics[topic] {
		n += len(records)
	}
	return n
}

func (l *Log) append(topic string, key, value []byte) model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	partitions, ok := l.topics[topic]
	if !ok {
		partitions = make([][]model.Record, l.partitions)
		l.topics[topic] = partitions
	}

	p := l.partitionFor(key)
	pos := model.Position{
		Topic:     topic,
		Partition: p,
		Offset:    int64(len(partitions[p])),
	}
	partitions[p] = append(partitions[p], model.Record{
		Key:      append([]byte(nil), key...),
		Value:    append([]byte(nil), value...),
		Position: pos,
	})

	for w := range l.waiters {
		w.notify()
	}
	return pos
}

func (l *Log) partitionFor(key []byte) int32 {
	if l.partitions == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int32(h.Sum32() % uint32(l.partitions))
}

// next returns the first unread record among c's partitions, in partition order.
func (l *Log) next(c *Consumer) (model.Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, topic := range c.topics {
		partitions := l.topics[topic]
		for p := range partitions {
			tp := topicPartition{topic: topic, partition: int32(p)}
			offset := c.cursors[tp]
			if offset < int64(len(partitions[p])) {
				c.cursors[tp] = offset + 1
				return partitions[p][offset], true
			}
		}
	}
	return model.Record{}, false
}

func (l *Log) commit(group string, pos model.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := groupPartition{group: group, topic: pos.Topic, partition: pos.Partition}
	if next := pos.Offset + 1; next > l.committed[key] {
		l.committed[key] = next
	}
}

func (l *Log) removeWaiter(w *readyWait) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.waiters, w)
}

// readyWait wakes a waiting consumer without blocking the producer.
type readyWait struct {
	ready chan struct{}
}

func makeReadyWait() *readyWait {
	return &readyWait{ready: make(chan struct{}, 1)}
}

func (r *readyWait) notify() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

func (r *readyWait) wait() <-chan struct{} {
	return r.ready
}
