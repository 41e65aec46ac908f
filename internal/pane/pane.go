// Package pane holds the pane model, window construction from producer
// descriptors, the update engine and the patch/hash machinery used to ship
// pane changes to consumers.
package pane

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the pane type discriminator. It never changes after creation.
type Type string

const (
	TypeText         Type = "text"
	TypeImage        Type = "image"
	TypeImageHistory Type = "image_history"
	TypeProperties   Type = "properties"
	TypeNetwork      Type = "network"
	TypeEmbeddings   Type = "embeddings"
	TypePlot         Type = "plot"
)

// Known reports whether t is one of the pane types the broker understands.
func (t Type) Known() bool {
	switch t {
	case TypeText, TypeImage, TypeImageHistory, TypeProperties, TypeNetwork, TypeEmbeddings, TypePlot:
		return true
	default:
		return false
	}
}

var (
	ErrMalformed         = errors.New("malformed pane")
	ErrUnsupportedUpdate = errors.New("unsupported update")
	ErrShapeMismatch     = errors.New("shape mismatch")
)

// Pane is one visualization unit. Content holds decoded JSON whose shape
// depends on Type:
//
//	text          string (HTML)
//	image         {src, caption}
//	image_history []image content, with Selected and ShowSlider
//	properties    opaque
//	network       opaque
//	embeddings    {data, selected, has_previous}, with OldContent
//	plot          {data: [trace...], layout: {...}}
//
// Extra carries every other top-level key through untouched.
type Pane struct {
	ID         string
	I          int
	ContentID  string
	Type       Type
	Title      string
	Width      *float64
	Height     *float64
	Inflate    bool
	Content    any
	Selected   *int
	ShowSlider *bool
	OldContent []any
	Extra      map[string]any
}

// known top-level keys, handled by Map and fromMap
var reservedKeys = map[string]struct{}{
	"command": {}, "id": {}, "i": {}, "contentID": {}, "type": {}, "title": {},
	"width": {}, "height": {}, "inflate": {}, "content": {},
	"selected": {}, "show_slider": {}, "old_content": {},
}

// Map returns the wire form of the pane as a generic JSON object.
func (p *Pane) Map() map[string]any {
	out := make(map[string]any, len(p.Extra)+13)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["command"] = "window"
	out["id"] = p.ID
	out["i"] = p.I
	out["contentID"] = p.ContentID
	out["type"] = string(p.Type)
	out["title"] = p.Title
	out["inflate"] = p.Inflate
	out["content"] = p.Content
	if p.Width != nil {
		out["width"] = *p.Width
	} else {
		out["width"] = nil
	}
	if p.Height != nil {
		out["height"] = *p.Height
	} else {
		out["height"] = nil
	}
	if p.Type == TypeImageHistory {
		selected := 0
		if p.Selected != nil {
			selected = *p.Selected
		}
		out["selected"] = selected
		showSlider := true
		if p.ShowSlider != nil {
			showSlider = *p.ShowSlider
		}
		out["show_slider"] = showSlider
	}
	if p.Type == TypeEmbeddings {
		old := p.OldContent
		if old == nil {
			old = []any{}
		}
		out["old_content"] = old
	}
	return out
}

// Document returns the pane as plain decoded JSON (maps, slices, float64),
// the form the diff engine and canonical hash operate on.
func (p *Pane) Document() (map[string]any, error) {
	raw, err := json.Marshal(p.Map())
	if err != nil {
		return nil, fmt.Errorf("marshal pane %s: %w", p.ID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode pane %s: %w", p.ID, err)
	}
	return doc, nil
}

func (p *Pane) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

func (p *Pane) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: null pane", ErrMalformed)
	}
	parsed, err := FromMap(raw)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// FromMap builds a pane from its decoded wire form. Unknown keys end up in
// Extra. The map is not retained.
func FromMap(raw map[string]any) (*Pane, error) {
	p := &Pane{Inflate: true}
	id, ok := asString(raw["id"])
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	p.ID = id
	if i, ok := asInt(raw["i"]); ok {
		p.I = i
	}
	if contentID, ok := asString(raw["contentID"]); ok {
		p.ContentID = contentID
	}
	typ, _ := asString(raw["type"])
	p.Type = Type(typ)
	if !p.Type.Known() {
		return nil, fmt.Errorf("%w: unknown pane type %q", ErrMalformed, typ)
	}
	p.Title = titleString(raw["title"])
	if inflate, ok := raw["inflate"].(bool); ok {
		p.Inflate = inflate
	}
	p.Width = optionalFloat(raw["width"])
	p.Height = optionalFloat(raw["height"])
	p.Content = CloneValue(raw["content"])
	if p.Type == TypeImageHistory {
		if selected, ok := asInt(raw["selected"]); ok {
			p.Selected = &selected
		}
		if showSlider, ok := raw["show_slider"].(bool); ok {
			p.ShowSlider = &showSlider
		}
	}
	if p.Type == TypeEmbeddings {
		if old, ok := asList(raw["old_content"]); ok {
			p.OldContent = CloneValue(old).([]any)
		} else {
			p.OldContent = []any{}
		}
	}
	for k, v := range raw {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = CloneValue(v)
	}
	return p, nil
}

// Clone returns a deep copy of p.
func (p *Pane) Clone() *Pane {
	out := *p
	if p.Width != nil {
		w := *p.Width
		out.Width = &w
	}
	if p.Height != nil {
		h := *p.Height
		out.Height = &h
	}
	if p.Selected != nil {
		s := *p.Selected
		out.Selected = &s
	}
	if p.ShowSlider != nil {
		s := *p.ShowSlider
		out.ShowSlider = &s
	}
	out.Content = CloneValue(p.Content)
	if p.OldContent != nil {
		out.OldContent = CloneValue(p.OldContent).([]any)
	}
	out.Extra = cloneMap(p.Extra)
	return &out
}

// Traces returns the plot traces of a plot pane, or nil.
func (p *Pane) Traces() []map[string]any {
	if p.Type != TypePlot {
		return nil
	}
	content, ok := asObject(p.Content)
	if !ok {
		return nil
	}
	traces, _ := objects(content["data"])
	return traces
}

// FirstTraceType returns the type tag of the first trace of a plot pane.
func (p *Pane) FirstTraceType() string {
	traces := p.Traces()
	if len(traces) == 0 {
		return ""
	}
	typ, _ := asString(traces[0]["type"])
	return typ
}

func optionalFloat(v any) *float64 {
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func titleString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
