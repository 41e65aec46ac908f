package pane

import "fmt"

// Heatmap update directions (Args.UpdateDir).
const (
	DirReplace       = "replace"
	DirRemove        = "remove"
	DirAppendRow     = "appendRow"
	DirPrependRow    = "prependRow"
	DirAppendColumn  = "appendColumn"
	DirPrependColumn = "prependColumn"
)

// updateHeatmap applies a directional update to the heatmap trace at
// traces[0]. Rows run along z's outer list and are named by y; columns run
// along each row and are named by x.
func updateHeatmap(traces []any, incoming []map[string]any, dir string) ([]any, error) {
	if dir == DirRemove {
		return []any{}, nil
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: heatmap update requires updateDir", ErrMalformed)
	}
	if len(incoming) == 0 {
		return nil, fmt.Errorf("%w: heatmap update requires data", ErrMalformed)
	}
	current := traces[0].(map[string]any)
	update := incoming[0]

	switch dir {
	case DirReplace:
		for _, key := range []string{"z", "x", "y"} {
			if value, ok := update[key]; ok {
				current[key] = CloneValue(value)
			}
		}
		return traces, nil
	case DirAppendRow, DirPrependRow, DirAppendColumn, DirPrependColumn:
	default:
		return nil, fmt.Errorf("%w: unknown updateDir %q", ErrUnsupportedUpdate, dir)
	}

	z, err := matrix(current["z"])
	if err != nil {
		return nil, fmt.Errorf("current z: %w", err)
	}
	rowOp := dir == DirAppendRow || dir == DirPrependRow
	prepend := dir == DirPrependRow || dir == DirPrependColumn
	block, err := incomingBlock(update["z"], rowOp)
	if err != nil {
		return nil, fmt.Errorf("incoming z: %w", err)
	}

	nameKey := "x"
	if rowOp {
		nameKey = "y"
	}
	names, err := mergeAxisNames(current[nameKey], update[nameKey], prepend)
	if err != nil {
		return nil, err
	}

	if rowOp {
		cols := -1
		if len(z) > 0 {
			cols = len(z[0])
		}
		for _, row := range block {
			if cols >= 0 && len(row) != cols {
				return nil, fmt.Errorf("%w: row of length %d does not match %d columns", ErrShapeMismatch, len(row), cols)
			}
		}
		if prepend {
			z = append(block, z...)
		} else {
			z = append(z, block...)
		}
	} else {
		if len(block) != len(z) {
			return nil, fmt.Errorf("%w: column of height %d does not match %d rows", ErrShapeMismatch, len(block), len(z))
		}
		for r := range z {
			if prepend {
				z[r] = append(append([]any{}, block[r]...), z[r]...)
			} else {
				z[r] = append(z[r], block[r]...)
			}
		}
	}

	out := make([]any, len(z))
	for i, row := range z {
		out[i] = row
	}
	current["z"] = out
	if names != nil {
		current[nameKey] = names
	}
	return traces, nil
}

func matrix(v any) ([][]any, error) {
	if v == nil {
		return nil, nil
	}
	rows, ok := asList(v)
	if !ok {
		return nil, fmt.Errorf("%w: z is not a list", ErrMalformed)
	}
	out := make([][]any, 0, len(rows))
	for i, row := range rows {
		cells, ok := asList(row)
		if !ok {
			return nil, fmt.Errorf("%w: z row %d is not a list", ErrMalformed, i)
		}
		out = append(out, cells)
	}
	return out, nil
}

// incomingBlock reads the incoming z. A flat list is one row for row
// operations and one column (a cell per row) for column operations.
func incomingBlock(v any, rowOp bool) ([][]any, error) {
	list, ok := asList(v)
	if !ok {
		return nil, fmt.Errorf("%w: z must be a list", ErrMalformed)
	}
	flat := len(list) > 0
	for _, item := range list {
		if _, nested := asList(item); nested {
			flat = false
			break
		}
	}
	if flat {
		list = CloneValue(list).([]any)
		if rowOp {
			return [][]any{list}, nil
		}
		out := make([][]any, len(list))
		for i, cell := range list {
			out[i] = []any{cell}
		}
		return out, nil
	}
	return matrix(CloneValue(list))
}

// mergeAxisNames concatenates row or column names. Names must be present on
// both sides or on neither, and may not repeat existing names.
func mergeAxisNames(current, incoming any, prepend bool) ([]any, error) {
	currentNames, hasCurrent := asList(current)
	incomingNames, hasIncoming := asList(incoming)
	if hasCurrent != hasIncoming {
		return nil, fmt.Errorf("%w: axis names must be given on both the pane and the update or on neither", ErrShapeMismatch)
	}
	if !hasCurrent {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(currentNames))
	for _, name := range currentNames {
		seen[fmt.Sprint(name)] = struct{}{}
	}
	for _, name := range incomingNames {
		if _, dup := seen[fmt.Sprint(name)]; dup {
			return nil, fmt.Errorf("%w: axis name %v already present", ErrShapeMismatch, name)
		}
	}
	out := make([]any, 0, len(currentNames)+len(incomingNames))
	if prepend {
		out = append(out, CloneValue(incomingNames).([]any)...)
		out = append(out, currentNames...)
	} else {
		out = append(out, currentNames...)
		out = append(out, CloneValue(incomingNames).([]any)...)
	}
	return out, nil
}
