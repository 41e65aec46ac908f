package broker

import (
	"context"
	"errors"
	"strings"

	"panehub/server/internal/compare"
	"panehub/server/internal/env"
	"panehub/server/internal/pane"
	"panehub/server/internal/transport"

	"github.com/golang/glog"
)

// Save persists the listed envs and returns the ids actually saved.
func (b *Broker) Save(ctx context.Context, eids []string) ([]string, error) {
	escaped := make([]string, len(eids))
	for i, eid := range eids {
		escaped[i] = env.EscapeID(eid)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Save(ctx, escaped)
}

// Fork copies prev into eid, persists it, and returns eid. A missing prev
// is an invariant failure.
func (b *Broker) Fork(ctx context.Context, prev, eid string) (string, error) {
	prev = env.EscapeID(prev)
	eid = env.EscapeID(eid)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.store.Has(prev) {
		return "", invariantError("env %s does not exist", prev)
	}
	forked, err := b.store.Fork(ctx, prev, eid)
	if errors.Is(err, env.ErrNotFound) {
		return "", invariantError("env %s does not exist", prev)
	}
	if err != nil {
		return "", err
	}
	b.broadcastEnvs(ctx)
	b.index.RemoveEnv(eid)
	b.index.IndexPanes(eid, forked.Panes())
	return eid, nil
}

// DeleteEnv drops eid from memory and the backend.
func (b *Broker) DeleteEnv(ctx context.Context, eid string) error {
	eid = env.EscapeID(eid)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteEnv(ctx, eid)
}

func (b *Broker) deleteEnv(ctx context.Context, eid string) error {
	if err := b.store.Delete(ctx, eid); err != nil {
		return err
	}
	b.broadcastEnvs(ctx)
	b.index.RemoveEnv(eid)
	return nil
}

func (b *Broker) EnvIDs(ctx context.Context) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.IDs(ctx)
}

// EnvPaneIDs lists the pane ids of eid in creation order.
func (b *Broker) EnvPaneIDs(ctx context.Context, eid string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.store.Get(ctx, env.EscapeID(eid))
	if errors.Is(err, env.ErrNotFound) {
		return nil, clientError("env does not exist")
	}
	if err != nil {
		return nil, err
	}
	return e.IDs(), nil
}

// Snapshot returns a deep copy of eid, or env.ErrNotFound.
func (b *Broker) Snapshot(ctx context.Context, eid string) (*env.Env, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.store.Get(ctx, env.EscapeID(eid))
	if err != nil {
		return nil, err
	}
	return e.Clone(e.ID), nil
}

// Walk calls fn for every pane of every env, loading lazy envs. Envs that
// fail to load are skipped. fn runs under the broker lock and must not
// call back into the broker.
func (b *Broker) Walk(ctx context.Context, fn func(eid string, p *pane.Pane)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, eid := range b.store.IDs(ctx) {
		e, err := b.store.Get(ctx, eid)
		if err != nil {
			continue
		}
		for _, p := range e.Panes() {
			fn(eid, p)
		}
	}
}

func (b *Broker) Layouts() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Layouts()
}

// SaveLayouts replaces the shared layouts blob and pushes it to every
// consumer.
func (b *Broker) SaveLayouts(ctx context.Context, layouts string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveLayouts(ctx, layouts)
}

func (b *Broker) saveLayouts(ctx context.Context, layouts string) error {
	if err := b.store.SetLayouts(ctx, layouts); err != nil {
		return err
	}
	b.broadcastLayouts()
	return nil
}

func (b *Broker) sub(sid string) (transport.Conn, error) {
	c, ok := b.registry.Get(transport.KindSub, sid)
	if !ok {
		return nil, clientError("sid %s is not connected", sid)
	}
	return c, nil
}

// BindEnv replays eid to consumer sid and binds it there. A missing env
// replays nothing but the layout command.
func (b *Broker) BindEnv(ctx context.Context, sid, eid string) error {
	eid = env.EscapeID(eid)

	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.sub(sid)
	if err != nil {
		return err
	}
	e, err := b.store.Get(ctx, eid)
	switch {
	case errors.Is(err, env.ErrNotFound):
		b.replay(c, nil, nil)
	case err != nil:
		return err
	default:
		b.replay(c, e.Reload, e.Panes())
	}
	c.SetEid(eid)
	glog.V(1).Infof("sub %s bound to env %s", sid, eid)
	return nil
}

// BindCompare replays the compare view of joined ("a+b+…") to consumer
// sid and binds it to the set.
func (b *Broker) BindCompare(ctx context.Context, sid, joined string) error {
	ids := compare.SplitIDs(joined)

	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.sub(sid)
	if err != nil {
		return err
	}
	envs := make([]*env.Env, 0, len(ids))
	for _, eid := range ids {
		e, err := b.store.Get(ctx, eid)
		if errors.Is(err, env.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		envs = append(envs, e)
	}
	view := compare.Build(envs)
	b.replay(c, view.Reload, view.Panes)
	c.SetEid(strings.Join(ids, "+"))
	return nil
}
