package pane

import "fmt"

// trace axes that take part in replace/append
var traceAxes = []string{"x", "y", "z"}

func traceName(trace any) (string, bool) {
	obj, ok := asObject(trace)
	if !ok {
		return "", false
	}
	return asString(obj["name"])
}

func matchingTraces(traces []any, name *string) []int {
	idxs := make([]int, 0, len(traces))
	for i, trace := range traces {
		if name == nil {
			idxs = append(idxs, i)
			continue
		}
		if n, ok := traceName(trace); ok && n == *name {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func deleteTraces(traces []any, name *string) ([]any, error) {
	if name == nil {
		return nil, fmt.Errorf("%w: delete requires a trace name", ErrMalformed)
	}
	kept := make([]any, 0, len(traces))
	for _, trace := range traces {
		if n, ok := traceName(trace); ok && n == *name {
			continue
		}
		kept = append(kept, trace)
	}
	return kept, nil
}

// updateTraces handles scatter-family updates: delete by name, inject a new
// named trace, or replace/append x, y, z and marker.color of the targets.
func updateTraces(traces []any, incoming []map[string]any, args Args) ([]any, error) {
	if args.Delete {
		return deleteTraces(traces, args.Name)
	}
	if len(incoming) == 0 {
		return traces, nil
	}

	idxs := matchingTraces(traces, args.Name)
	if args.Name != nil {
		if len(incoming) != 1 {
			return nil, fmt.Errorf("%w: a named update carries exactly one trace, got %d", ErrMalformed, len(incoming))
		}
		if len(idxs) > 1 {
			idxs = idxs[:1]
		}
	}

	if len(idxs) == 0 {
		injected := map[string]any{}
		if len(traces) > 0 {
			injected = cloneMap(traces[0].(map[string]any))
		}
		for k, v := range incoming[0] {
			injected[k] = CloneValue(v)
		}
		if args.Name != nil {
			injected["name"] = *args.Name
		}
		return append(traces, injected), nil
	}

	if len(incoming) < len(idxs) {
		return nil, fmt.Errorf("%w: update carries %d traces for %d targets", ErrShapeMismatch, len(incoming), len(idxs))
	}

	for n, idx := range idxs {
		target := traces[idx].(map[string]any)
		update := incoming[n]
		if xs, ok := asList(update["x"]); ok && allNullish(xs) {
			continue
		}
		for _, axis := range traceAxes {
			value, present := update[axis]
			if !present {
				continue
			}
			merged, err := mergeSeries(target[axis], value, args.Append)
			if err != nil {
				return nil, fmt.Errorf("trace %d axis %s: %w", idx, axis, err)
			}
			target[axis] = merged
		}
		if err := mergeMarkerColor(target, update, args.Append); err != nil {
			return nil, fmt.Errorf("trace %d marker: %w", idx, err)
		}
	}
	return traces, nil
}

func mergeSeries(current, incoming any, appendMode bool) (any, error) {
	if !appendMode {
		return CloneValue(incoming), nil
	}
	next, ok := asList(incoming)
	if !ok {
		return nil, fmt.Errorf("%w: appended values must be a list", ErrMalformed)
	}
	var existing []any
	if current != nil {
		existing, ok = asList(current)
		if !ok {
			return nil, fmt.Errorf("%w: existing values are not a list", ErrShapeMismatch)
		}
	}
	out := make([]any, 0, len(existing)+len(next))
	out = append(out, existing...)
	out = append(out, CloneValue(next).([]any)...)
	return out, nil
}

// mergeMarkerColor treats marker.color as a per-point list, replaced or
// appended exactly like the axes.
func mergeMarkerColor(target, update map[string]any, appendMode bool) error {
	marker, ok := asObject(update["marker"])
	if !ok {
		return nil
	}
	color, present := marker["color"]
	if !present {
		return nil
	}
	targetMarker, ok := asObject(target["marker"])
	if !ok {
		targetMarker = map[string]any{}
		target["marker"] = targetMarker
	}
	current := targetMarker["color"]
	if appendMode {
		if _, isList := asList(current); !isList {
			current = []any{}
		}
	}
	merged, err := mergeSeries(current, color, appendMode)
	if err != nil {
		return err
	}
	targetMarker["color"] = merged
	return nil
}
