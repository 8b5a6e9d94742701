package chatbridge

import (
	"sync"

	"github.com/coregx/chatbridge/model"
)

// Registry maps a routing key to the subscribers currently attached to it.
//
// It holds only references used for fan-out. Subscribers are created and closed
// by their streams; the registry never closes them. All methods are safe for
// concurrent use and never block on I/O.
type Registry struct {
	mu   sync.RWMutex
	subs map[model.RoutingKey][]*Subscriber
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[model.RoutingKey][]*Subscriber),
	}
}

// Attach registers sub under key. Attaching a subscriber that is already
// registered under key is a no-op.
func (r *Registry) Attach(key model.RoutingKey, sub *Subscriber) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs[key] {
		if s == sub {
			return
		}
	}
	r.subs[key] = append(r.subs[key], sub)
}

// Detach removes sub from key. The key is removed once its last subscriber is
// detached. Detaching a subscriber that is not registered is a no-op.
func (r *Registry) Detach(key model.RoutingKey, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.subs[key]
	for i, s := range current {
		if s != sub {
			continue
		}
		if len(current) == 1 {
			delete(r.subs, key)
			return
		}
		// Copy on write: snapshots handed out by Fanout must not change.
		next := make([]*Subscriber, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		r.subs[key] = next
		return
	}
}

// Fanout returns a snapshot of the subscribers attached to key, in attach order.
// The returned slice is owned by the caller. It is empty when nobody is attached.
func (r *Registry) Fanout(key model.RoutingKey) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := r.subs[key]
	if len(current) == 0 {
		return nil
	}
	snapshot := make([]*Subscriber, len(current))
	copy(snapshot, current)
	return snapshot
}

// Len returns the number of attached subscribers across all keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, subs := range r.subs {
		n += len(subs)
	}
	return n
}

// Keys returns the number of routing keys with at least one subscriber.
func (r *Registry) Keys() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
