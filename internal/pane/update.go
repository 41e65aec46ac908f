package pane

import (
	"fmt"

	"panehub/server/internal/util"
)

// Embeddings update tags carried in Args.Data["update_type"].
const (
	EntitySelected = "EntitySelected"
	RegionSelected = "RegionSelected"
)

// updatableTraces are the first-trace types a plot pane may have for the
// update endpoint to accept it.
var updatableTraces = map[string]struct{}{
	"scatter":   {},
	"scattergl": {},
	"scatter3d": {},
	"custom":    {},
	"heatmap":   {},
}

// CheckUpdatable reports whether p accepts updates at all.
func CheckUpdatable(p *Pane) error {
	switch p.Type {
	case TypeText, TypeImageHistory, TypeEmbeddings:
		return nil
	case TypePlot:
		traceType := p.FirstTraceType()
		if len(p.Traces()) == 0 {
			return nil
		}
		if _, ok := updatableTraces[traceType]; ok {
			return nil
		}
		return fmt.Errorf("%w: win is not scatter, custom, heatmap, image_history, embeddings, or text; was %s",
			ErrUnsupportedUpdate, traceType)
	default:
		return fmt.Errorf("%w: win is not scatter, custom, heatmap, image_history, embeddings, or text; was %s",
			ErrUnsupportedUpdate, p.Type)
	}
}

// Update applies args to a copy of p and returns the copy with a fresh
// content id. p is never modified; on error the caller keeps p as is.
func Update(p *Pane, args Args) (*Pane, error) {
	if err := CheckUpdatable(p); err != nil {
		return nil, err
	}
	next := p.Clone()
	var err error
	switch next.Type {
	case TypeText:
		err = updateText(next, args)
	case TypeImageHistory:
		err = updateImageHistory(next, args)
	case TypeEmbeddings:
		err = updateEmbeddings(next, args)
	case TypePlot:
		err = updatePlot(next, args)
	}
	if err != nil {
		return nil, err
	}
	next.ContentID = util.NewContentID()
	return next, nil
}

func firstDescriptor(data any) (map[string]any, error) {
	descriptors, ok := objects(data)
	if !ok || len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: data must be a non-empty list of objects", ErrMalformed)
	}
	return descriptors[0], nil
}

func updateText(p *Pane, args Args) error {
	current, ok := asString(p.Content)
	if !ok {
		return fmt.Errorf("%w: text pane %s has non-string content", ErrMalformed, p.ID)
	}
	first, err := firstDescriptor(args.Data)
	if err != nil {
		return err
	}
	addition, ok := first["content"]
	if !ok {
		return fmt.Errorf("%w: text update requires content", ErrMalformed)
	}
	p.Content = current + "<br>" + titleString(addition)
	return nil
}

func updateImageHistory(p *Pane, args Args) error {
	history, ok := asList(p.Content)
	if !ok {
		return fmt.Errorf("%w: image_history pane %s has non-list content", ErrMalformed, p.ID)
	}
	first, err := firstDescriptor(args.Data)
	if err != nil {
		return err
	}
	utype, _ := asString(first["type"])
	switch utype {
	case "image_history":
		content, ok := first["content"]
		if !ok {
			return fmt.Errorf("%w: image_history update requires content", ErrMalformed)
		}
		history = append(history, CloneValue(content))
		p.Content = history
		selected := len(history) - 1
		p.Selected = &selected
	case "image_update_selected":
		requested, ok := asInt(first["selected"])
		if !ok {
			return fmt.Errorf("%w: image_update_selected requires a numeric selected", ErrMalformed)
		}
		selected := clamp(requested, 0, len(history)-1)
		p.Selected = &selected
	default:
		return fmt.Errorf("%w: unknown image_history update type %q", ErrUnsupportedUpdate, utype)
	}
	return nil
}

func updateEmbeddings(p *Pane, args Args) error {
	content, ok := asObject(p.Content)
	if !ok {
		return fmt.Errorf("%w: embeddings pane %s has non-object content", ErrMalformed, p.ID)
	}
	data, ok := asObject(args.Data)
	if !ok {
		return fmt.Errorf("%w: embeddings update requires an object payload", ErrMalformed)
	}
	utype, _ := asString(data["update_type"])
	switch utype {
	case EntitySelected:
		content["selected"] = CloneValue(data["selected"])
	case RegionSelected:
		points, ok := asList(data["points"])
		if !ok {
			return fmt.Errorf("%w: RegionSelected requires points", ErrMalformed)
		}
		p.OldContent = append(p.OldContent, CloneValue(content["data"]))
		content["has_previous"] = true
		content["data"] = CloneValue(points)
		content["selected"] = nil
	default:
		return fmt.Errorf("%w: unknown embeddings update type %q", ErrUnsupportedUpdate, utype)
	}
	return nil
}

// PopEmbeddings restores the previous embeddings point set of p in place.
// It reports false when there is nothing to pop.
func PopEmbeddings(p *Pane) bool {
	if p.Type != TypeEmbeddings || len(p.OldContent) == 0 {
		return false
	}
	content, ok := asObject(p.Content)
	if !ok {
		return false
	}
	last := p.OldContent[len(p.OldContent)-1]
	p.OldContent = p.OldContent[:len(p.OldContent)-1]
	content["data"] = last
	content["selected"] = nil
	if len(p.OldContent) == 0 {
		content["has_previous"] = false
	}
	p.ContentID = util.NewContentID()
	return true
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
