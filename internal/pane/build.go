package pane

import (
	"fmt"

	"panehub/server/internal/util"
)

// Args is the producer request body shared by window creation and updates.
// Data is either a list of trace/content descriptors or, for embeddings
// updates, a single object.
type Args struct {
	Win       *string        `json:"win"`
	Eid       *string        `json:"eid"`
	Data      any            `json:"data"`
	Layout    map[string]any `json:"layout"`
	Opts      map[string]any `json:"opts"`
	Name      *string        `json:"name"`
	Append    bool           `json:"append"`
	Delete    bool           `json:"delete"`
	UpdateDir string         `json:"updateDir"`
}

// WinID returns the caller supplied pane id, or "" when absent.
func (a Args) WinID() string {
	if a.Win == nil {
		return ""
	}
	return *a.Win
}

// Build constructs a new pane from a window creation request. The pane id
// is the caller supplied win or a fresh window_ id. I is assigned by the
// environment on insert.
func Build(args Args) (*Pane, error) {
	descriptors, ok := objects(args.Data)
	if !ok || len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: data must be a non-empty list of objects", ErrMalformed)
	}
	id := args.WinID()
	if id == "" {
		id = util.NewWindowID()
	}
	opts := args.Opts
	if opts == nil {
		opts = map[string]any{}
	}

	p := &Pane{
		ID:        id,
		ContentID: util.NewContentID(),
		Title:     titleString(opts["title"]),
		Width:     optionalFloat(opts["width"]),
		Height:    optionalFloat(opts["height"]),
		Inflate:   true,
	}
	if inflate, ok := opts["inflate"].(bool); ok {
		p.Inflate = inflate
	}

	first := descriptors[0]
	typ, _ := asString(first["type"])
	switch Type(typ) {
	case TypeText, TypeImage, TypeProperties, TypeNetwork:
		content, present := first["content"]
		if !present {
			return nil, fmt.Errorf("%w: %s pane requires content", ErrMalformed, typ)
		}
		p.Type = Type(typ)
		p.Content = CloneValue(content)
	case TypeImageHistory:
		content, present := first["content"]
		if !present {
			return nil, fmt.Errorf("%w: image_history pane requires content", ErrMalformed)
		}
		p.Type = TypeImageHistory
		p.Content = []any{CloneValue(content)}
		selected := 0
		p.Selected = &selected
		showSlider := true
		if v, ok := opts["show_slider"].(bool); ok {
			showSlider = v
		}
		p.ShowSlider = &showSlider
	case TypeEmbeddings:
		content, ok := asObject(first["content"])
		if !ok {
			return nil, fmt.Errorf("%w: embeddings pane requires object content", ErrMalformed)
		}
		content = cloneMap(content)
		content["has_previous"] = false
		p.Type = TypeEmbeddings
		p.Content = content
		p.OldContent = []any{}
	default:
		layout := cloneMap(args.Layout)
		if layout == nil {
			layout = map[string]any{}
		}
		traces := make([]any, 0, len(descriptors))
		for _, trace := range descriptors {
			traces = append(traces, cloneMap(trace))
		}
		p.Type = TypePlot
		p.Content = map[string]any{"data": traces, "layout": layout}
	}
	return p, nil
}
