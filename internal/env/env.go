// Package env holds environments: named, insertion-ordered collections of
// panes plus the browser supplied reload geometry, and the Store that
// materializes them from a snapshot backend.
package env

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"panehub/server/internal/pane"
)

const DefaultID = "main"

// EscapeID normalizes a client supplied env id: slashes become underscores
// and an empty id means DefaultID.
func EscapeID(eid string) string {
	if eid == "" {
		return DefaultID
	}
	return strings.ReplaceAll(eid, "/", "_")
}

type Env struct {
	ID     string
	Reload map[string]any

	panes map[string]*pane.Pane
	next  int
}

func New(id string) *Env {
	return &Env{
		ID:     id,
		Reload: map[string]any{},
		panes:  map[string]*pane.Pane{},
	}
}

func (e *Env) Len() int {
	return len(e.panes)
}

func (e *Env) Get(win string) (*pane.Pane, bool) {
	p, ok := e.panes[win]
	return p, ok
}

// Register inserts p. A new id gets the next creation index; an id that is
// already present keeps its index and is replaced. It reports whether the
// id was new.
func (e *Env) Register(p *pane.Pane) bool {
	if existing, ok := e.panes[p.ID]; ok {
		p.I = existing.I
		e.panes[p.ID] = p
		return false
	}
	p.I = e.next
	e.next++
	e.panes[p.ID] = p
	return true
}

// Replace swaps in the updated version of an existing pane, keeping its
// creation index.
func (e *Env) Replace(p *pane.Pane) {
	if existing, ok := e.panes[p.ID]; ok {
		p.I = existing.I
	}
	e.panes[p.ID] = p
	if p.I >= e.next {
		e.next = p.I + 1
	}
}

// ReplaceAll swaps the full pane set for panes. Indices they carry are
// kept; a repeated index is moved past the highest one.
func (e *Env) ReplaceAll(panes []*pane.Pane) {
	sorted := append([]*pane.Pane(nil), panes...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].I != sorted[j].I {
			return sorted[i].I < sorted[j].I
		}
		return sorted[i].ID < sorted[j].ID
	})
	e.panes = make(map[string]*pane.Pane, len(sorted))
	e.next = 0
	used := make(map[int]struct{}, len(sorted))
	for _, p := range sorted {
		if _, dup := used[p.I]; dup {
			p.I = e.next
		}
		used[p.I] = struct{}{}
		e.panes[p.ID] = p
		if p.I >= e.next {
			e.next = p.I + 1
		}
	}
}

func (e *Env) Remove(win string) bool {
	if _, ok := e.panes[win]; !ok {
		return false
	}
	delete(e.panes, win)
	delete(e.Reload, win)
	return true
}

// Clear removes every pane and returns the removed ids in creation order.
func (e *Env) Clear() []string {
	ids := e.IDs()
	e.panes = map[string]*pane.Pane{}
	e.Reload = map[string]any{}
	return ids
}

// Panes returns the panes in creation order.
func (e *Env) Panes() []*pane.Pane {
	out := make([]*pane.Pane, 0, len(e.panes))
	for _, p := range e.panes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].I != out[j].I {
			return out[i].I < out[j].I
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Env) IDs() []string {
	panes := e.Panes()
	ids := make([]string, len(panes))
	for i, p := range panes {
		ids[i] = p.ID
	}
	return ids
}

// Clone deep-copies e under a new id.
func (e *Env) Clone(id string) *Env {
	out := New(id)
	out.next = e.next
	for win, p := range e.panes {
		out.panes[win] = p.Clone()
	}
	for win, meta := range e.Reload {
		out.Reload[win] = pane.CloneValue(meta)
	}
	return out
}

type document struct {
	Jsons  map[string]json.RawMessage `json:"jsons"`
	Reload map[string]any             `json:"reload"`
}

func (e *Env) MarshalJSON() ([]byte, error) {
	jsons := make(map[string]json.RawMessage, len(e.panes))
	for win, p := range e.panes {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal pane %s: %w", win, err)
		}
		jsons[win] = raw
	}
	reload := e.Reload
	if reload == nil {
		reload = map[string]any{}
	}
	return json.Marshal(document{Jsons: jsons, Reload: reload})
}

// Decode parses a snapshot body into an env named id.
func Decode(id string, body []byte) (*Env, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode env %s: %w", id, err)
	}
	e := New(id)
	if doc.Reload != nil {
		e.Reload = doc.Reload
	}
	for win, raw := range doc.Jsons {
		var p pane.Pane
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode env %s pane %s: %w", id, win, err)
		}
		p.ID = win
		e.panes[win] = &p
		if p.I >= e.next {
			e.next = p.I + 1
		}
	}
	return e, nil
}
