package chatbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coregx/chatbridge/model"
)

const testTopic = "chat-messages"

// fakeLog is an in-memory LogConsumer and LogProducer that records every call.
type fakeLog struct {
	mu       sync.Mutex
	records  chan model.Record
	events   []string
	commits  []model.Position
	produced []model.Record
	pollErrs []error
	closed   bool
	produce  func(topic string, key, value []byte) error
	commitFn func(pos model.Position) error
}

func newFakeLog() *fakeLog {
	return &fakeLog{records: make(chan model.Record, 64)}
}

func (f *fakeLog) Poll(ctx context.Context, timeout time.Duration) (*model.Record, error) {
	f.mu.Lock()
	if len(f.pollErrs) > 0 {
		err := f.pollErrs[0]
		f.pollErrs = f.pollErrs[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-f.records:
		return &rec, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeLog) Commit(_ context.Context, pos model.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.commitFn != nil {
		if err := f.commitFn(pos); err != nil {
			return err
		}
	}
	f.commits = append(f.commits, pos)
	f.events = append(f.events, "commit:"+pos.String())
	return nil
}

func (f *fakeLog) Produce(_ context.Context, topic string, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.produce != nil {
		if err := f.produce(topic, key, value); err != nil {
			return err
		}
	}
	pos := model.Position{Topic: topic, Offset: int64(len(f.produced))}
	rec := model.Record{Key: key, Value: value, Position: pos}
	f.produced = append(f.produced, rec)
	f.records <- rec
	return nil
}

func (f *fakeLog) Flush(context.Context) error { return nil }

func (f *fakeLog) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	f.closed = true
	return nil
}

func (f *fakeLog) failPolls(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollErrs = append(f.pollErrs, errs...)
}

func (f *fakeLog) note(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeLog) committed() []model.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Position(nil), f.commits...)
}

func (f *fakeLog) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeLog) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// push feeds a record straight to the consumer side.
func (f *fakeLog) push(t *testing.T, key model.RoutingKey, payload string, offset int64) model.Position {
	t.Helper()

	value, err := model.EncodeEnvelope(key, json.RawMessage(payload))
	require.NoError(t, err)

	pos := model.Position{Topic: testTopic, Offset: offset}
	f.records <- model.Record{Key: []byte(key), Value: value, Position: pos}
	return pos
}

// recordingSink collects emitted payloads. failOn makes the nth Emit (1-based) fail.
type recordingSink struct {
	mu       sync.Mutex
	payloads []string
	emitted  chan string
	failOn   int
	calls    int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{emitted: make(chan string, 64)}
}

func (s *recordingSink) Emit(_ context.Context, payload json.RawMessage) error {
	s.mu.Lock()
	s.calls++
	if s.failOn > 0 && s.calls == s.failOn {
		s.mu.Unlock()
		return errors.New("client gone")
	}
	s.payloads = append(s.payloads, string(payload))
	s.mu.Unlock()

	s.emitted <- string(payload)
	return nil
}

func (s *recordingSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

func (s *recordingSink) next(t *testing.T) string {
	t.Helper()

	select {
	case p := <-s.emitted:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emitted payload")
		return ""
	}
}

// waitFor polls cond until it holds or fails the test after two seconds.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
