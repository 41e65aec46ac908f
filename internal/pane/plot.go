package pane

import (
	"fmt"
)

func plotParts(p *Pane) (map[string]any, []any, error) {
	content, ok := asObject(p.Content)
	if !ok {
		return nil, nil, fmt.Errorf("%w: plot pane %s has non-object content", ErrMalformed, p.ID)
	}
	traces, ok := asList(content["data"])
	if !ok && content["data"] != nil {
		return nil, nil, fmt.Errorf("%w: plot pane %s has non-list data", ErrMalformed, p.ID)
	}
	for i, trace := range traces {
		if _, ok := asObject(trace); !ok {
			return nil, nil, fmt.Errorf("%w: plot pane %s trace %d is not an object", ErrMalformed, p.ID, i)
		}
	}
	return content, traces, nil
}

func updatePlot(p *Pane, args Args) error {
	content, traces, err := plotParts(p)
	if err != nil {
		return err
	}

	if len(args.Opts) > 0 {
		applyOpts(p, traces, args.Opts)
	}
	if len(args.Layout) > 0 {
		layout, ok := asObject(content["layout"])
		if !ok {
			layout = map[string]any{}
		}
		for k, v := range args.Layout {
			if v == nil {
				continue
			}
			layout[k] = CloneValue(v)
		}
		content["layout"] = layout
	}

	if args.UpdateDir == DirRemove && p.FirstTraceType() == "heatmap" {
		content["data"] = []any{}
		return nil
	}
	if args.Data == nil {
		if args.Delete {
			traces, err = deleteTraces(traces, args.Name)
			if err != nil {
				return err
			}
			content["data"] = traces
		}
		return nil
	}
	incoming, ok := objects(args.Data)
	if !ok {
		return fmt.Errorf("%w: data must be a list of trace objects", ErrMalformed)
	}

	incomingType := ""
	if len(incoming) > 0 {
		incomingType, _ = asString(incoming[0]["type"])
	}
	if len(traces) == 0 && incomingType == "heatmap" {
		seeded := make([]any, 0, len(incoming))
		for _, trace := range incoming {
			seeded = append(seeded, cloneMap(trace))
		}
		content["data"] = seeded
		return nil
	}
	if p.FirstTraceType() == "heatmap" {
		traces, err = updateHeatmap(traces, incoming, args.UpdateDir)
	} else {
		traces, err = updateTraces(traces, incoming, args)
	}
	if err != nil {
		return err
	}
	content["data"] = traces
	return nil
}

// applyOpts copies non-null opts onto the pane's top-level fields. A
// "legend" option renames traces by index.
func applyOpts(p *Pane, traces []any, opts map[string]any) {
	for k, v := range opts {
		if v == nil {
			continue
		}
		switch k {
		case "title":
			p.Title = titleString(v)
		case "width":
			p.Width = optionalFloat(v)
		case "height":
			p.Height = optionalFloat(v)
		case "inflate":
			if inflate, ok := v.(bool); ok {
				p.Inflate = inflate
			}
		case "legend":
			names, ok := asList(v)
			if !ok {
				continue
			}
			for i, name := range names {
				if i >= len(traces) {
					break
				}
				traces[i].(map[string]any)["name"] = CloneValue(name)
			}
		default:
			if _, reserved := reservedKeys[k]; reserved {
				continue
			}
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[k] = CloneValue(v)
		}
	}
}
