package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"panehub/server/internal/env"
	"panehub/server/internal/pane"

	"github.com/golang/glog"
)

// Events creates (or re-creates) a pane and returns its id.
func (b *Broker) Events(ctx context.Context, args pane.Args) (string, error) {
	p, err := pane.Build(args)
	if err != nil {
		return "", fromPaneError(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.register(ctx, eidOf(args.Eid), p)
}

func (b *Broker) register(ctx context.Context, eid string, p *pane.Pane) (string, error) {
	e, created, err := b.store.GetOrCreate(ctx, eid)
	if err != nil {
		return "", err
	}
	e.Register(p)
	glog.V(1).Infof("registered pane %s in env %s", p.ID, eid)

	b.broadcastPane(eid, p)
	if created {
		b.broadcastEnvs(ctx)
	}
	b.index.IndexPanes(eid, []*pane.Pane{p})
	return p.ID, nil
}

// lookup returns the pane or nil; a missing env is not an error.
func (b *Broker) lookup(ctx context.Context, eid, win string) (*env.Env, *pane.Pane, error) {
	e, err := b.store.Get(ctx, eid)
	if errors.Is(err, env.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	p, _ := e.Get(win)
	return e, p, nil
}

// Update applies an update to an existing pane and broadcasts the smaller
// of the full pane and its patch. Appending to a missing pane creates it.
func (b *Broker) Update(ctx context.Context, args pane.Args) (string, error) {
	eid := eidOf(args.Eid)
	win := args.WinID()

	b.mu.Lock()
	defer b.mu.Unlock()

	e, current, err := b.lookup(ctx, eid, win)
	if err != nil {
		return "", err
	}
	if current == nil {
		if args.Append {
			p, err := pane.Build(args)
			if err != nil {
				return "", fromPaneError(err)
			}
			return b.register(ctx, eid, p)
		}
		return "", clientError("win does not exist")
	}

	next, err := pane.Update(current, args)
	if err != nil {
		glog.Warningf("update of pane %s in env %s rejected: %v", win, eid, err)
		return "", fromPaneError(err)
	}
	packet, err := pane.Packet(current, next, eid)
	if err != nil {
		return "", err
	}
	e.Replace(next)
	b.toEnv(eid, packet)
	b.index.IndexPanes(eid, []*pane.Pane{next})
	return next.ID, nil
}

// Close removes one pane, or every pane of the env when win is nil.
func (b *Broker) Close(ctx context.Context, eidArg, win *string) error {
	eid := eidOf(eidArg)

	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.store.Get(ctx, eid)
	if errors.Is(err, env.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var closed []string
	if win == nil {
		closed = e.Clear()
	} else if e.Remove(*win) {
		closed = []string{*win}
	}
	for _, id := range closed {
		b.broadcastClose(eid, id)
	}
	if len(closed) > 0 {
		b.index.RemovePanes(eid, closed)
	}
	return nil
}

func (b *Broker) WinExists(ctx context.Context, eidArg *string, win string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, p, err := b.lookup(ctx, eidOf(eidArg), win)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// WinHash returns the canonical md5 of the pane; ok is false when it does
// not exist.
func (b *Broker) WinHash(ctx context.Context, eidArg *string, win string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, p, err := b.lookup(ctx, eidOf(eidArg), win)
	if err != nil || p == nil {
		return "", false, err
	}
	hash, err := pane.Hash(p)
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// WinData reads one pane, or all panes of the env when win is nil. A non
// nil data turns it into a setter: data (a JSON string or an object)
// replaces the pane, or every pane when win is nil.
func (b *Broker) WinData(ctx context.Context, eidArg, win *string, data any) (any, error) {
	eid := eidOf(eidArg)

	b.mu.Lock()
	defer b.mu.Unlock()

	if data != nil {
		return b.setWinData(ctx, eid, win, data)
	}

	e, err := b.store.Get(ctx, eid)
	if errors.Is(err, env.ErrNotFound) {
		return nil, clientError("env does not exist")
	}
	if err != nil {
		return nil, err
	}
	if win == nil {
		all := make(map[string]any, e.Len())
		for _, p := range e.Panes() {
			all[p.ID] = p.Map()
		}
		return all, nil
	}
	p, ok := e.Get(*win)
	if !ok {
		return nil, clientError("win does not exist")
	}
	return p.Map(), nil
}

func (b *Broker) setWinData(ctx context.Context, eid string, win *string, data any) (any, error) {
	if raw, ok := data.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, clientError("data is not valid JSON: %v", err)
		}
		data = decoded
	}
	object, ok := data.(map[string]any)
	if !ok {
		return nil, clientError("data must be a JSON object")
	}

	var panes []*pane.Pane
	if win == nil {
		for id, raw := range object {
			p, err := paneFromData(id, raw)
			if err != nil {
				return nil, err
			}
			panes = append(panes, p)
		}
	} else {
		p, err := paneFromData(*win, object)
		if err != nil {
			return nil, err
		}
		panes = []*pane.Pane{p}
	}

	e, created, err := b.store.GetOrCreate(ctx, eid)
	if err != nil {
		return nil, err
	}
	if win == nil {
		removed := e.IDs()
		e.ReplaceAll(panes)
		b.index.RemovePanes(eid, removed)
		for _, id := range removed {
			if _, kept := object[id]; !kept {
				b.broadcastClose(eid, id)
			}
		}
	} else if _, had := e.Get(*win); had {
		e.Replace(panes[0])
	} else {
		e.Register(panes[0])
	}
	sort.Slice(panes, func(i, j int) bool { return panes[i].I < panes[j].I })
	ids := make([]string, 0, len(panes))
	for _, p := range panes {
		b.broadcastPane(eid, p)
		ids = append(ids, p.ID)
	}
	b.index.IndexPanes(eid, panes)
	if created || win == nil {
		b.broadcastEnvs(ctx)
	}
	return ids, nil
}

func paneFromData(id string, raw any) (*pane.Pane, error) {
	object, ok := raw.(map[string]any)
	if !ok {
		return nil, clientError("pane %s must be a JSON object", id)
	}
	object = pane.CloneValue(object).(map[string]any)
	object["id"] = id
	p, err := pane.FromMap(object)
	if err != nil {
		return nil, fromPaneError(fmt.Errorf("pane %s: %w", id, err))
	}
	return p, nil
}
