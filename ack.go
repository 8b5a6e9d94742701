package chatbridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/chatbridge/model"
)

// Handle states.
const (
	handlePending int32 = iota
	handleAcked
	handleReleased
)

// AckHandle acknowledges one delivery of a fanned-out record.
//
// All handles created for one record share an ack group: the first Ack commits
// the record's position, later acks from other subscribers are no-ops. Each
// handle must be resolved exactly once, by Ack or Release.
type AckHandle struct {
	group *ackGroup
	state atomic.Int32
}

// Ack signals that the payload was delivered to the client. The first Ack in the
// group commits the position; the commit runs even if ctx is cancelled, bounded
// by the consumer's commit timeout. Calling Ack on a handle that was already acked
// or released returns ErrDoubleAck and has no other effect.
func (h *AckHandle) Ack(ctx context.Context) error {
	if !h.state.CompareAndSwap(handlePending, handleAcked) {
		return ErrDoubleAck
	}
	return h.group.resolve(ctx, true)
}

// Release gives the delivery up without acknowledging it. Releasing an already
// resolved handle does nothing.
func (h *AckHandle) Release() {
	if h.state.CompareAndSwap(handlePending, handleReleased) {
		_ = h.group.resolve(context.Background(), false)
	}
}

// Position returns the log position the handle acknowledges.
func (h *AckHandle) Position() model.Position {
	return h.group.pos
}

type commitFunc func(ctx context.Context, pos model.Position) error

// ackGroup tracks the handles of one fan-out.
//
// The group is armed once the consumer finished pushing to every subscriber in
// the snapshot. Nothing is committed before that; an ack that arrives earlier is
// committed at arm time. The group settles exactly once: after its commit, or
// when it is armed and every handle was released without an ack.
type ackGroup struct {
	pos      model.Position
	commit   commitFunc
	timeout  time.Duration
	onSettle func(committed bool, err error)

	mu         sync.Mutex
	refs       int
	armed      bool
	acked      bool
	committing bool
	settled    bool
}

func newAckGroup(pos model.Position, commit commitFunc, timeout time.Duration, onSettle func(bool, error)) *ackGroup {
	return &ackGroup{
		pos:      pos,
		commit:   commit,
		timeout:  timeout,
		onSettle: onSettle,
	}
}

func (g *ackGroup) newHandle() *AckHandle {
	g.mu.Lock()
	g.refs++
	g.mu.Unlock()
	return &AckHandle{group: g}
}

func (g *ackGroup) resolve(ctx context.Context, acked bool) error {
	g.mu.Lock()
	g.refs--
	if acked {
		g.acked = true
	}
	commit, settle := g.nextLocked()
	g.mu.Unlock()

	return g.finish(ctx, commit, settle)
}

func (g *ackGroup) arm(ctx context.Context) error {
	g.mu.Lock()
	g.armed = true
	commit, settle := g.nextLocked()
	g.mu.Unlock()

	return g.finish(ctx, commit, settle)
}

// nextLocked decides whether the caller has to commit or settle without commit.
func (g *ackGroup) nextLocked() (commit, settle bool) {
	if !g.armed || g.committing || g.settled {
		return false, false
	}
	if g.acked {
		g.committing = true
		return true, false
	}
	if g.refs == 0 {
		g.settled = true
		return false, true
	}
	return false, false
}

func (g *ackGroup) finish(ctx context.Context, commit, settle bool) error {
	switch {
	case commit:
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		err := g.commit(cctx, g.pos)

		g.mu.Lock()
		g.settled = true
		g.mu.Unlock()

		g.onSettle(true, err)
		return err
	case settle:
		g.onSettle(false, nil)
	}
	return nil
}
