// Package broker owns the env store and the connection registry and routes
// every message between producers and consumers.
//
// One mutex serializes all store mutation and all enqueueing, so a
// consumer sees messages in the order the state changes happened.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"panehub/server/internal/env"
	"panehub/server/internal/pane"
	"panehub/server/internal/rbac"
	"panehub/server/internal/transport"

	"github.com/golang/glog"
)

// Indexer is told about pane changes. Calls happen under the broker lock
// and must not block.
type Indexer interface {
	IndexPanes(eid string, panes []*pane.Pane)
	RemovePanes(eid string, wins []string)
	RemoveEnv(eid string)
}

type nopIndexer struct{}

func (nopIndexer) IndexPanes(string, []*pane.Pane) {}
func (nopIndexer) RemovePanes(string, []string)    {}
func (nopIndexer) RemoveEnv(string)                {}

type Options struct {
	Readonly bool
	Indexer  Indexer
	// Now is the clock of polling connections; nil means time.Now.
	Now func() time.Time
}

type Broker struct {
	mu       sync.Mutex
	store    *env.Store
	registry *transport.Registry
	readonly bool
	role     rbac.Role
	index    Indexer
	now      func() time.Time
}

func New(store *env.Store, registry *transport.Registry, opts Options) *Broker {
	b := &Broker{
		store:    store,
		registry: registry,
		readonly: opts.Readonly,
		role:     rbac.ForReadonly(opts.Readonly),
		index:    opts.Indexer,
		now:      opts.Now,
	}
	if b.index == nil {
		b.index = nopIndexer{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *Broker) Registry() *transport.Registry {
	return b.registry
}

func (b *Broker) Readonly() bool {
	return b.readonly
}

// Ping checks the snapshot backend.
func (b *Broker) Ping(ctx context.Context) error {
	return b.store.Backend().Ping(ctx)
}

func eidOf(eid *string) string {
	if eid == nil {
		return env.DefaultID
	}
	return env.EscapeID(*eid)
}

func encodeFrame(v any) ([]byte, bool) {
	frame, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("encode outbound message: %v", err)
		return nil, false
	}
	return frame, true
}

func commandFrame(command string, data any) ([]byte, bool) {
	return encodeFrame(map[string]any{"command": command, "data": data})
}

// deliver enqueues frame on c, dropping c when it is gone.
func (b *Broker) deliver(c transport.Conn, frame []byte) {
	if err := c.Enqueue(frame); err != nil {
		b.drop(c, err)
	}
}

func (b *Broker) drop(c transport.Conn, reason error) {
	if b.registry.Remove(c.Kind(), c.ID()) {
		glog.Warningf("dropping %s %s: %v", c.Kind(), c.ID(), reason)
	}
	c.Close()
}

// toEnv sends frame to every consumer bound to eid.
func (b *Broker) toEnv(eid string, frame []byte) {
	for _, c := range b.registry.Subs() {
		if transport.BoundTo(c.Eid(), eid) {
			b.deliver(c, frame)
		}
	}
}

func (b *Broker) toSubs(frame []byte) {
	for _, c := range b.registry.Subs() {
		b.deliver(c, frame)
	}
}

// toSources sends frame to every producer except the one with sid except.
func (b *Broker) toSources(frame []byte, except string) {
	for _, c := range b.registry.Sources() {
		if c.ID() == except {
			continue
		}
		b.deliver(c, frame)
	}
}

func (b *Broker) broadcastPane(eid string, p *pane.Pane) {
	if frame, ok := encodeFrame(p); ok {
		b.toEnv(eid, frame)
	}
}

func (b *Broker) broadcastClose(eid, win string) {
	if frame, ok := commandFrame("close", win); ok {
		b.toEnv(eid, frame)
	}
}

func (b *Broker) envListFrame(ctx context.Context) ([]byte, bool) {
	return commandFrame("env_update", b.store.IDs(ctx))
}

func (b *Broker) broadcastEnvs(ctx context.Context) {
	if frame, ok := b.envListFrame(ctx); ok {
		b.toSubs(frame)
	}
}

func (b *Broker) broadcastLayouts() {
	if frame, ok := commandFrame("layout_update", b.store.Layouts()); ok {
		b.toSubs(frame)
	}
}

// replay sends the reload hints, the panes in order, and the closing
// layout command to a single consumer.
func (b *Broker) replay(c transport.Conn, reload map[string]any, panes []*pane.Pane) {
	if reload != nil {
		if frame, ok := commandFrame("reload", reload); ok {
			b.deliver(c, frame)
		}
	}
	for _, p := range panes {
		if frame, ok := encodeFrame(p); ok {
			b.deliver(c, frame)
		}
	}
	if frame, ok := encodeFrame(map[string]any{"command": "layout"}); ok {
		b.deliver(c, frame)
	}
}
