package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"panehub/server/internal/env"
	"panehub/server/internal/pane"
	"panehub/server/internal/rbac"
	"panehub/server/internal/transport"

	"github.com/golang/glog"
)

// inbound is a command frame sent by a browser or a producer.
type inbound struct {
	Cmd     string          `json:"cmd"`
	Data    json.RawMessage `json:"data"`
	Eid     string          `json:"eid"`
	PrevEid string          `json:"prev_eid"`
}

// target names a pane inside an event payload.
type target struct {
	Eid    string `json:"eid"`
	Target string `json:"target"`
}

// OpenConn registers c and sends its greeting: register, layouts and the
// env list for a consumer, alive for a producer.
func (b *Broker) OpenConn(ctx context.Context, c transport.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.registry.Add(c)
	glog.V(1).Infof("%s %s opened over %s", c.Kind(), c.ID(), c.Mode())

	if c.Kind() == transport.KindSource {
		if frame, ok := commandFrame("alive", "vis_alive"); ok {
			b.deliver(c, frame)
		}
		return
	}
	if frame, ok := encodeFrame(map[string]any{"command": "register", "data": c.ID(), "readonly": b.readonly}); ok {
		b.deliver(c, frame)
	}
	if frame, ok := commandFrame("layout_update", b.store.Layouts()); ok {
		b.deliver(c, frame)
	}
	if frame, ok := b.envListFrame(ctx); ok {
		b.deliver(c, frame)
	}
}

// CloseConn unregisters the connection and drops its pending frames.
func (b *Broker) CloseConn(kind transport.Kind, sid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.registry.Get(kind, sid)
	if !ok {
		return
	}
	b.registry.Remove(kind, sid)
	c.Close()
	glog.V(1).Infof("%s %s closed", kind, sid)
}

// HandleSubMessage applies one command frame from consumer sid. Malformed
// frames and commands the server role does not allow are dropped.
func (b *Broker) HandleSubMessage(ctx context.Context, sid string, frame []byte) {
	var msg inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		glog.Warningf("sub %s sent a malformed frame: %v", sid, err)
		return
	}
	if !rbac.Can(b.role, rbac.CommandAction(msg.Cmd)) {
		glog.V(1).Infof("ignoring %s from sub %s on a readonly server", msg.Cmd, sid)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	glog.V(1).Infof("sub %s: %s", sid, msg.Cmd)
	glog.V(2).Infof("sub %s payload: %s", sid, frame)

	var err error
	switch msg.Cmd {
	case "close":
		err = b.closeFromSub(ctx, msg)
	case "save":
		err = b.saveFromSub(ctx, sid, msg)
	case "delete_env":
		if msg.Eid == "" {
			return
		}
		err = b.deleteEnv(ctx, env.EscapeID(msg.Eid))
	case "save_layouts":
		err = b.saveLayoutsFromSub(ctx, msg)
	case "forward_to_vis":
		err = b.forwardToVis(ctx, msg)
	case "layout_item_update":
		err = b.layoutItemUpdate(ctx, msg)
	case "pop_embeddings_pane":
		err = b.popEmbeddings(ctx, msg)
	default:
		glog.Warningf("sub %s sent unknown command %q", sid, msg.Cmd)
		return
	}
	if err != nil {
		glog.Warningf("sub %s %s failed: %v", sid, msg.Cmd, err)
	}
}

func dataString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (b *Broker) closeFromSub(ctx context.Context, msg inbound) error {
	win, ok := dataString(msg.Data)
	if !ok || msg.Eid == "" {
		return errors.New("close needs data and eid")
	}
	eid := env.EscapeID(msg.Eid)
	e, err := b.store.Get(ctx, eid)
	if err != nil {
		return err
	}
	p, ok := e.Get(win)
	if !ok {
		return nil
	}
	e.Remove(win)
	b.broadcastClose(eid, win)
	b.index.RemovePanes(eid, []string{win})

	b.notifySources(map[string]any{
		"event_type": "Close",
		"target":     win,
		"eid":        eid,
		"pane_data":  p.Map(),
	})
	return nil
}

// notifySources relays a consumer event to every producer.
func (b *Broker) notifySources(event map[string]any) {
	if frame, ok := encodeFrame(event); ok {
		b.toSources(frame, "")
	}
}

// saveFromSub copies prev_eid into eid with the browser's reload geometry,
// rebinds the consumer and persists the result.
func (b *Broker) saveFromSub(ctx context.Context, sid string, msg inbound) error {
	if msg.Eid == "" || len(msg.Data) == 0 {
		return errors.New("save needs data and eid")
	}
	var reload map[string]any
	if err := json.Unmarshal(msg.Data, &reload); err != nil {
		return fmt.Errorf("decode reload: %w", err)
	}
	eid := env.EscapeID(msg.Eid)
	prev := eid
	if msg.PrevEid != "" {
		prev = env.EscapeID(msg.PrevEid)
	}

	src, err := b.store.Get(ctx, prev)
	if err != nil {
		return fmt.Errorf("save from %s: %w", prev, err)
	}
	next := src
	if prev != eid {
		next = src.Clone(eid)
		b.store.Put(next)
	}
	if reload == nil {
		reload = map[string]any{}
	}
	next.Reload = reload

	if c, ok := b.registry.Get(transport.KindSub, sid); ok {
		c.SetEid(eid)
	}
	if err := b.store.SaveEnv(ctx, eid); err != nil {
		return err
	}
	b.broadcastEnvs(ctx)
	if prev != eid {
		b.index.RemoveEnv(eid)
		b.index.IndexPanes(eid, next.Panes())
	}
	b.notifySources(map[string]any{
		"event_type": "Save",
		"eid":        eid,
		"prev_eid":   prev,
		"reload":     reload,
	})
	return nil
}

func (b *Broker) saveLayoutsFromSub(ctx context.Context, msg inbound) error {
	if len(msg.Data) == 0 {
		return errors.New("save_layouts needs data")
	}
	layouts, ok := dataString(msg.Data)
	if !ok {
		layouts = string(msg.Data)
	}
	return b.saveLayouts(ctx, layouts)
}

// forwardToVis relays a browser event to every producer, attaching the
// pane unless the event carries pane_data false.
func (b *Broker) forwardToVis(ctx context.Context, msg inbound) error {
	var event map[string]any
	if err := json.Unmarshal(msg.Data, &event); err != nil || event == nil {
		return errors.New("forward_to_vis needs an event object")
	}
	if attach, set := event["pane_data"]; !set || attach != false {
		eid, _ := event["eid"].(string)
		win, _ := event["target"].(string)
		e, err := b.store.Get(ctx, env.EscapeID(eid))
		if err != nil {
			return err
		}
		p, ok := e.Get(win)
		if !ok {
			return fmt.Errorf("pane %s not in env %s", win, eid)
		}
		event["pane_data"] = p.Map()
	}
	b.notifySources(event)
	return nil
}

func (b *Broker) layoutItemUpdate(ctx context.Context, msg inbound) error {
	var item map[string]any
	if err := json.Unmarshal(msg.Data, &item); err != nil || item == nil {
		return errors.New("layout_item_update needs a layout object")
	}
	win, ok := item["i"].(string)
	if !ok {
		return errors.New("layout item has no pane id")
	}
	eid := env.EscapeID(msg.Eid)
	e, err := b.store.Get(ctx, eid)
	if err != nil {
		return err
	}
	if e.Reload == nil {
		e.Reload = map[string]any{}
	}
	e.Reload[win] = item
	b.notifySources(map[string]any{
		"event_type": "LayoutItemUpdate",
		"eid":        eid,
		"target":     win,
		"layout":     item,
	})
	return nil
}

func (b *Broker) popEmbeddings(ctx context.Context, msg inbound) error {
	var t target
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		return fmt.Errorf("decode pop_embeddings_pane: %w", err)
	}
	eid := env.EscapeID(t.Eid)
	e, err := b.store.Get(ctx, eid)
	if err != nil {
		return err
	}
	p, ok := e.Get(t.Target)
	if !ok {
		return fmt.Errorf("pane %s not in env %s", t.Target, eid)
	}
	next := p.Clone()
	if pane.PopEmbeddings(next) {
		e.Replace(next)
		b.broadcastPane(eid, next)
		b.index.IndexPanes(eid, []*pane.Pane{next})
	} else {
		next = p
	}
	b.notifySources(map[string]any{
		"event_type": "PopEmbeddings",
		"eid":        eid,
		"target":     t.Target,
		"pane_data":  next.Map(),
	})
	return nil
}

// HandleSourceMessage applies one frame from producer sid. Only echo is
// understood; it is reflected to every other producer.
func (b *Broker) HandleSourceMessage(sid string, frame []byte) {
	var msg inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		glog.Warningf("source %s sent a malformed frame: %v", sid, err)
		return
	}
	if msg.Cmd != "echo" {
		glog.V(1).Infof("source %s sent unhandled command %q", sid, msg.Cmd)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toSources(frame, sid)
}
