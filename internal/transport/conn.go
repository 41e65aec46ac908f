// Package transport implements the two connection kinds of the broker,
// consumers (subs) and producers (sources), over WebSocket and HTTP polling
// behind one Conn contract.
package transport

import (
	"errors"
	"strings"
	"sync"
)

var ErrClosed = errors.New("connection closed")

type Kind string

const (
	KindSub    Kind = "sub"
	KindSource Kind = "source"
)

const (
	ModeWebSocket = "websocket"
	ModePolling   = "polling"
)

// Conn is one registered connection. Enqueue never blocks on the peer;
// frames reach the peer in enqueue order.
type Conn interface {
	ID() string
	Kind() Kind
	Mode() string
	// Eid is the current env binding: one env id or a "+"-joined compare
	// set. Empty until the peer binds.
	Eid() string
	SetEid(eid string)
	Enqueue(frame []byte) error
	// Drain returns the frames queued since the last Drain. WebSocket
	// connections write frames as they come and always return nil.
	Drain() [][]byte
	Close()
	Done() <-chan struct{}
}

// BoundTo reports whether a connection bound to binding should receive
// messages for eid.
func BoundTo(binding, eid string) bool {
	if binding == "" {
		return false
	}
	if binding == eid {
		return true
	}
	if !strings.Contains(binding, "+") {
		return false
	}
	for _, member := range strings.Split(binding, "+") {
		if member == eid {
			return true
		}
	}
	return false
}

type base struct {
	id   string
	kind Kind

	mu  sync.RWMutex
	eid string
}

func (b *base) ID() string { return b.id }

func (b *base) Kind() Kind { return b.kind }

func (b *base) Eid() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eid
}

func (b *base) SetEid(eid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eid = eid
}

// outbox is an unbounded FIFO of frames with a wakeup signal for a single
// consumer goroutine.
type outbox struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (o *outbox) push(frame []byte) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.frames = append(o.frames, frame)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

func (o *outbox) takeAll() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames := o.frames
	o.frames = nil
	return frames
}

// close drops pending frames and reports whether this call closed it.
func (o *outbox) close() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.closed = true
	o.frames = nil
	close(o.done)
	return true
}

func (o *outbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
